package monitor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// TCPProbe checks that a TCP port accepts connections
type TCPProbe struct {
	dialer net.Dialer
}

func NewTCPProbe() *TCPProbe {
	return &TCPProbe{}
}

// Check dials the monitor's host:port and closes the connection immediately
func (t *TCPProbe) Check(ctx context.Context, m *models.Monitor, timeout time.Duration) Outcome {
	dialer := t.dialer
	dialer.Timeout = timeout

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", m.Address())
	if err != nil {
		return down(describeNetError(err, timeout))
	}
	latency := elapsedMs(start)
	_ = conn.Close()

	return Outcome{
		Alive:      true,
		Latency:    latency,
		Diagnostic: fmt.Sprintf("port %d is open - %dms", m.Port.Int64, latency.Int64),
	}
}
