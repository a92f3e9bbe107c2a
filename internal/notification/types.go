package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// ErrRateLimited is returned when a target exceeded its outbound budget
var ErrRateLimited = errors.New("notification rate limited")

// ConfigRepository supplies per-monitor notification settings.
// A nil config with a nil error means the monitor has none.
type ConfigRepository interface {
	GetConfig(ctx context.Context, monitorID uuid.UUID) (*models.NotificationConfig, error)
}

// Transport delivers a rendered message to one target
type Transport interface {
	Send(ctx context.Context, target string, message *Message) error
}

// Event describes the observation that changed a monitor's status
type Event struct {
	MonitorID   uuid.UUID
	MonitorName string
	MonitorURL  string
	Status      models.Status
	Previous    models.Status
	Diagnostic  string
	Latency     null.Int
	Time        time.Time
}

// Result reports what the dispatcher did with an event
type Result struct {
	Sent     bool   `json:"sent"`
	Watching bool   `json:"watching"`
	Reason   string `json:"reason,omitempty"`
}

// Message represents a notification message to be sent
type Message struct {
	Title       string
	MonitorName string
	MonitorURL  string
	Status      models.Status
	Body        string
	Latency     null.Int
	Time        time.Time
}

// NewMessage renders the alert for an event
func NewMessage(ev Event) *Message {
	title := "Monitor is DOWN"
	if ev.Status.IsUp() {
		title = "Monitor is UP"
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	return &Message{
		Title:       title,
		MonitorName: ev.MonitorName,
		MonitorURL:  ev.MonitorURL,
		Status:      ev.Status,
		Body:        ev.Diagnostic,
		Latency:     ev.Latency,
		Time:        at.UTC(),
	}
}

// ResponseTime renders the latency, or N/A when it was not measured
func (m *Message) ResponseTime() string {
	if !m.Latency.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%dms", m.Latency.Int64)
}

// FormatMessage renders the plain text alert body shared by all transports
func FormatMessage(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Monitor Alert**: %s\n", msg.MonitorName)
	fmt.Fprintf(&b, "**Status**: %s\n", strings.ToUpper(msg.Status.String()))
	if msg.Body != "" {
		fmt.Fprintf(&b, "**Message**: %s\n", msg.Body)
	}
	if msg.MonitorURL != "" {
		fmt.Fprintf(&b, "**Target**: %s\n", msg.MonitorURL)
	}
	fmt.Fprintf(&b, "**Response Time**: %s\n", msg.ResponseTime())
	fmt.Fprintf(&b, "**Time**: %s", msg.Time.Format(time.RFC3339))
	return b.String()
}
