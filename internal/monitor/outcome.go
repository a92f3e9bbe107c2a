package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/guregu/null/v5"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// Outcome is the normalized result of a single probe
type Outcome struct {
	Alive bool `json:"alive"`
	// Latency in milliseconds; invalid when the probe could not measure one
	Latency    null.Int `json:"latency"`
	Diagnostic string   `json:"diagnostic"`
	StatusCode int      `json:"status_code,omitempty"`
}

// Status maps the outcome onto the persisted up/down status
func (o Outcome) Status() models.Status {
	return models.StatusFromBool(o.Alive)
}

// ResponseTime is the latency to persist. A down outcome without a
// measurement stores 0; an up outcome without one stores null.
func (o Outcome) ResponseTime() null.Int {
	if o.Latency.Valid && o.Latency.Int64 >= 0 {
		return o.Latency
	}
	if o.Alive {
		return null.Int{}
	}
	return null.IntFrom(0)
}

func down(diagnostic string) Outcome {
	return Outcome{Alive: false, Diagnostic: diagnostic}
}

func elapsedMs(start time.Time) null.Int {
	return null.IntFrom(time.Since(start).Milliseconds())
}

// describeNetError turns a dial or request error into a short diagnostic
func describeNetError(err error, timeout time.Duration) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("timeout after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "probe cancelled"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("dns lookup failed: %s", dnsErr.Err)
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return "host unreachable"
	}
	return fmt.Sprintf("connection failed: %v", err)
}
