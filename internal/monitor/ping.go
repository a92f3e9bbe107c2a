package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// pingFunc sends count echo requests to host and returns the statistics
type pingFunc func(ctx context.Context, host string, count int, timeout time.Duration) (*ping.Statistics, error)

// PingProbe performs ICMP echo checks
type PingProbe struct {
	privileged bool
	run        pingFunc
}

func NewPingProbe(privileged bool) *PingProbe {
	p := &PingProbe{privileged: privileged}
	p.run = p.goPing
	return p
}

// Check is alive when at least one reply arrived. Latency is the average
// round trip and stays unset when no RTT samples were collected.
func (p *PingProbe) Check(ctx context.Context, m *models.Monitor, timeout time.Duration) Outcome {
	count := 1
	if m.PingCount.Valid && m.PingCount.Int64 > 0 {
		count = int(m.PingCount.Int64)
	}

	host := m.Host()
	stats, err := p.run(ctx, host, count, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return down("ping cancelled")
		}
		return down(fmt.Sprintf("ping failed: %v", err))
	}
	if stats.PacketsRecv == 0 {
		return down(fmt.Sprintf("no reply from %s (%d sent, 100%% packet loss)", host, stats.PacketsSent))
	}

	out := Outcome{
		Alive:      true,
		Diagnostic: fmt.Sprintf("%d/%d replies (loss: %.1f%%)", stats.PacketsRecv, stats.PacketsSent, stats.PacketLoss),
	}
	if len(stats.Rtts) > 0 {
		out.Latency.SetValid(stats.AvgRtt.Milliseconds())
		out.Diagnostic = fmt.Sprintf("ping OK - %dms avg (loss: %.1f%%)", out.Latency.Int64, stats.PacketLoss)
	}
	return out
}

func (p *PingProbe) goPing(ctx context.Context, host string, count int, timeout time.Duration) (*ping.Statistics, error) {
	pinger := ping.New(host)
	pinger.Count = count
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.privileged)

	// Resolve inside the goroutine so a slow lookup is bounded by ctx too
	done := make(chan error, 1)
	go func() {
		if err := pinger.Resolve(); err != nil {
			done <- err
			return
		}
		done <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
	}
	return pinger.Statistics(), nil
}
