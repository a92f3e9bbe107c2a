package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"gorm.io/gorm"
)

var (
	// ErrInvalidMonitor is returned when a monitor definition cannot be probed
	ErrInvalidMonitor = errors.New("invalid monitor")
	// ErrUnsupportedProtocol is returned for protocols without an executor
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

// Monitor represents a monitor configuration
type Monitor struct {
	ID                 uuid.UUID         `json:"id" gorm:"primaryKey"`
	Name               string            `json:"name" gorm:"not null"`
	Target             string            `json:"target" gorm:"column:url_ip_address;not null"`
	Protocol           Protocol          `json:"protocol" gorm:"not null"`
	Port               null.Int          `json:"port"`
	CheckInterval      int               `json:"check_interval" gorm:"not null"` // seconds
	Timeout            null.Int          `json:"timeout"`                        // seconds
	HTTPMethod         null.String       `json:"http_method" gorm:"column:http_method"`
	ExpectedStatusCode null.Int          `json:"expected_status_code"`
	ContentMatch       null.String       `json:"content_match"`
	RetryCount         null.Int          `json:"retry_count"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty" gorm:"-"`
	CustomHeadersRaw   string            `json:"-" gorm:"column:custom_headers;type:text"`
	DNSQueryType       null.String       `json:"dns_query_type" gorm:"column:dns_query_type"`
	PingCount          null.Int          `json:"ping_count"`
	Active             bool              `json:"active"`
	CreatedAt          time.Time         `json:"created_at"`
}

// TableName specifies the table name for Monitor
func (Monitor) TableName() string {
	return "monitors"
}

// BeforeCreate assigns an id when the caller did not
func (m *Monitor) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BeforeSave marshals the custom headers to JSON before saving (GORM hook)
func (m *Monitor) BeforeSave(tx *gorm.DB) error {
	if len(m.CustomHeaders) == 0 {
		m.CustomHeadersRaw = ""
		return nil
	}
	raw, err := json.Marshal(m.CustomHeaders)
	if err != nil {
		return err
	}
	m.CustomHeadersRaw = string(raw)
	return nil
}

// AfterFind unmarshals the custom headers JSON after loading (GORM hook)
func (m *Monitor) AfterFind(tx *gorm.DB) error {
	if m.CustomHeadersRaw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(m.CustomHeadersRaw), &m.CustomHeaders); err != nil {
		return fmt.Errorf("monitor %s: decode custom headers: %w", m.ID, err)
	}
	return nil
}

// Validate checks that a monitor can be probed.
// Unknown protocols wrap ErrUnsupportedProtocol, everything else ErrInvalidMonitor.
func (m *Monitor) Validate() error {
	proto, err := ParseProtocol(string(m.Protocol))
	if err != nil {
		return err
	}
	if strings.TrimSpace(m.Target) == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidMonitor)
	}
	if m.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive, got %d", ErrInvalidMonitor, m.CheckInterval)
	}
	if m.Timeout.Valid && m.Timeout.Int64 <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %d", ErrInvalidMonitor, m.Timeout.Int64)
	}

	switch {
	case proto.RequiresPort():
		if !m.Port.Valid {
			return fmt.Errorf("%w: %s monitor requires a port", ErrInvalidMonitor, proto)
		}
		if m.Port.Int64 < 1 || m.Port.Int64 > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidMonitor, m.Port.Int64)
		}
	case proto == ProtocolICMP:
		if m.Port.Valid {
			return fmt.Errorf("%w: ICMP monitor must not carry a port", ErrInvalidMonitor)
		}
	}
	return nil
}

// ProbeTimeout returns the monitor's own timeout or def when none is set
func (m *Monitor) ProbeTimeout(def time.Duration) time.Duration {
	if m.Timeout.Valid && m.Timeout.Int64 > 0 {
		return time.Duration(m.Timeout.Int64) * time.Second
	}
	return def
}

// Interval returns the check interval as a duration
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.CheckInterval) * time.Second
}

// URL returns the HTTP target, adding a scheme derived from the protocol
// when the stored target has none.
func (m *Monitor) URL() string {
	target := strings.TrimSpace(m.Target)
	if strings.Contains(target, "://") {
		return target
	}
	scheme := "http"
	if Protocol(strings.ToUpper(string(m.Protocol))) == ProtocolHTTPS {
		scheme = "https"
	}
	return scheme + "://" + target
}

// Host returns the bare host part of the target.
// Accepts URLs, host:port pairs and plain hostnames or IPs.
func (m *Monitor) Host() string {
	target := strings.TrimSpace(m.Target)
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil {
			return u.Hostname()
		}
	}
	if i := strings.IndexAny(target, "/?#"); i >= 0 {
		target = target[:i]
	}
	if host, _, err := net.SplitHostPort(target); err == nil {
		return host
	}
	return strings.Trim(target, "[]")
}

// Address returns host:port for socket based protocols
func (m *Monitor) Address() string {
	return net.JoinHostPort(m.Host(), strconv.FormatInt(m.Port.Int64, 10))
}
