package models

import (
	"fmt"
	"strings"
)

// Protocol is the probe family a monitor uses
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
)

// AllProtocols lists every protocol value a monitor may carry
var AllProtocols = []Protocol{ProtocolHTTP, ProtocolHTTPS, ProtocolTCP, ProtocolUDP, ProtocolICMP}

// ParseProtocol normalizes a stored protocol string. Matching is case-insensitive.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllProtocols {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
}

// RequiresPort reports whether the protocol addresses a host:port pair
func (p Protocol) RequiresPort() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// IsHTTP reports whether the protocol is HTTP or HTTPS
func (p Protocol) IsHTTP() bool {
	return p == ProtocolHTTP || p == ProtocolHTTPS
}

// Status is the normalized result of one observation
type Status string

const (
	// StatusUnknown marks a monitor that has never been observed
	StatusUnknown Status = ""
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// StatusFromBool maps a liveness flag to a status
func StatusFromBool(up bool) Status {
	if up {
		return StatusUp
	}
	return StatusDown
}

// IsUp reports whether the status is up
func (s Status) IsUp() bool {
	return s == StatusUp
}

func (s Status) String() string {
	if s == StatusUnknown {
		return "unknown"
	}
	return string(s)
}
