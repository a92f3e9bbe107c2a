package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-ping/ping"
	"github.com/guregu/null/v5"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

func testProber() *Prober {
	p := NewProber(ProberOptions{AllowPrivateIPs: true})
	p.ping.run = func(ctx context.Context, host string, count int, timeout time.Duration) (*ping.Statistics, error) {
		return &ping.Statistics{PacketsSent: count, PacketsRecv: count, Rtts: []time.Duration{time.Millisecond}, AvgRtt: time.Millisecond}, nil
	}
	return p
}

// Every protocol value must either reach an executor or be rejected as unsupported.
func TestProber_CoversAllProtocols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	tcp := tcpMonitor(t, srv.Listener.Addr().String())

	p := testProber()
	defer p.Close()

	for _, proto := range models.AllProtocols {
		// an explicit scheme in the target wins over the HTTPS default
		m := &models.Monitor{Name: string(proto), Target: srv.URL, Protocol: proto, CheckInterval: 30}
		switch proto {
		case models.ProtocolTCP, models.ProtocolUDP:
			m.Target, m.Port = tcp.Target, tcp.Port
		case models.ProtocolICMP:
			m.Target = "127.0.0.1"
		}

		out, err := p.Probe(context.Background(), m, time.Second)
		if proto == models.ProtocolUDP {
			if !errors.Is(err, models.ErrUnsupportedProtocol) {
				t.Fatalf("UDP: expected ErrUnsupportedProtocol, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", proto, err)
		}
		if !out.Alive {
			t.Fatalf("%s: expected up, got %+v", proto, out)
		}
	}
}

func TestProber_InputErrors(t *testing.T) {
	p := testProber()
	cases := []struct {
		name string
		m    models.Monitor
		want error
	}{
		{"unknown protocol", models.Monitor{Target: "x", Protocol: "GOPHER"}, models.ErrUnsupportedProtocol},
		{"missing target", models.Monitor{Protocol: models.ProtocolHTTP}, models.ErrInvalidMonitor},
		{"tcp without port", models.Monitor{Target: "db", Protocol: models.ProtocolTCP}, models.ErrInvalidMonitor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Probe(context.Background(), &tc.m, time.Second)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestProber_GuardRejectsPrivateTargets(t *testing.T) {
	p := NewProber(ProberOptions{AllowPrivateIPs: false})
	m := &models.Monitor{Target: "10.1.2.3", Protocol: models.ProtocolTCP, Port: null.IntFrom(22), CheckInterval: 30}

	_, err := p.Probe(context.Background(), m, time.Second)
	if !errors.Is(err, models.ErrInvalidMonitor) {
		t.Fatalf("expected the guard to reject the target, got %v", err)
	}
}
