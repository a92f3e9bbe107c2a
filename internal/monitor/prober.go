package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// ProberOptions configures the protocol executors
type ProberOptions struct {
	// AllowPrivateIPs disables the address guard for internal targets
	AllowPrivateIPs bool
	PingPrivileged  bool
}

// Prober runs the protocol specific check for a monitor
type Prober struct {
	http  *HTTPProbe
	tcp   *TCPProbe
	ping  *PingProbe
	guard *AddressGuard
}

func NewProber(opts ProberOptions) *Prober {
	return &Prober{
		http:  NewHTTPProbe(),
		tcp:   NewTCPProbe(),
		ping:  NewPingProbe(opts.PingPrivileged),
		guard: NewAddressGuard(opts.AllowPrivateIPs),
	}
}

// Close releases pooled connections
func (p *Prober) Close() {
	p.http.Close()
}

// Probe checks m within timeout. Unreachable targets produce a down Outcome;
// only malformed monitors return an error.
func (p *Prober) Probe(ctx context.Context, m *models.Monitor, timeout time.Duration) (Outcome, error) {
	proto, err := models.ParseProtocol(string(m.Protocol))
	if err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(m.Target) == "" {
		return Outcome{}, fmt.Errorf("%w: target is required", models.ErrInvalidMonitor)
	}
	if proto.RequiresPort() && !m.Port.Valid {
		return Outcome{}, fmt.Errorf("%w: %s monitor requires a port", models.ErrInvalidMonitor, proto)
	}
	if timeout <= 0 {
		return Outcome{}, fmt.Errorf("%w: timeout must be positive", models.ErrInvalidMonitor)
	}

	if p.guard != nil {
		if err := p.guard.Check(ctx, m.Host()); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", models.ErrInvalidMonitor, err)
		}
	}

	switch proto {
	case models.ProtocolHTTP, models.ProtocolHTTPS:
		return p.http.Check(ctx, m, timeout), nil
	case models.ProtocolTCP:
		return p.tcp.Check(ctx, m, timeout), nil
	case models.ProtocolICMP:
		return p.ping.Check(ctx, m, timeout), nil
	case models.ProtocolUDP:
		return Outcome{}, fmt.Errorf("%w: no %s executor", models.ErrUnsupportedProtocol, proto)
	}
	return Outcome{}, fmt.Errorf("%w: %s", models.ErrUnsupportedProtocol, proto)
}
