package monitor

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v5"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

func tcpMonitor(t *testing.T, addr string) *models.Monitor {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, _ := strconv.Atoi(portStr)
	return &models.Monitor{Name: "tcp", Target: host, Protocol: models.ProtocolTCP, Port: null.IntFrom(int64(port)), CheckInterval: 30}
}

func TestTCPProbe_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	out := NewTCPProbe().Check(context.Background(), tcpMonitor(t, ln.Addr().String()), time.Second)
	if !out.Alive || !out.Latency.Valid {
		t.Fatalf("expected up with latency, got %+v", out)
	}
	if !strings.Contains(out.Diagnostic, "is open") {
		t.Fatalf("unexpected diagnostic %q", out.Diagnostic)
	}
}

func TestTCPProbe_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out := NewTCPProbe().Check(context.Background(), tcpMonitor(t, addr), time.Second)
	if out.Alive || out.Latency.Valid {
		t.Fatalf("expected down without latency, got %+v", out)
	}
	if out.Diagnostic != "connection refused" {
		t.Fatalf("expected a refused diagnostic, got %q", out.Diagnostic)
	}
}

func TestTCPProbe_TimedOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	out := NewTCPProbe().Check(ctx, tcpMonitor(t, ln.Addr().String()), time.Second)
	if out.Alive {
		t.Fatalf("expected down, got %+v", out)
	}
	if !strings.HasPrefix(out.Diagnostic, "timeout") {
		t.Fatalf("expected a timeout diagnostic distinct from refusal, got %q", out.Diagnostic)
	}
}

func TestDescribeNetError(t *testing.T) {
	dns := &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}
	if got := describeNetError(dns, time.Second); !strings.HasPrefix(got, "dns lookup failed") {
		t.Fatalf("unexpected dns diagnostic %q", got)
	}
	if got := describeNetError(context.Canceled, time.Second); got != "probe cancelled" {
		t.Fatalf("unexpected cancel diagnostic %q", got)
	}
	if got := describeNetError(context.DeadlineExceeded, 3*time.Second); got != "timeout after 3s" {
		t.Fatalf("unexpected timeout diagnostic %q", got)
	}
}
