package monitor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

const (
	userAgent = "kabomba-probe/1.0"
	// maxBodyBytes bounds how much of a response is read for content matching
	maxBodyBytes = 1 << 20
)

// HTTPProbe performs HTTP and HTTPS checks over a shared transport
type HTTPProbe struct {
	transport *http.Transport
}

func NewHTTPProbe() *HTTPProbe {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}
	return &HTTPProbe{
		transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// Close drops idle keep-alive connections
func (h *HTTPProbe) Close() {
	h.transport.CloseIdleConnections()
}

// Check requests the monitor URL. Any response is a valid observation:
// status < 400 (or the configured expected code) is up, the rest is down.
func (h *HTTPProbe) Check(ctx context.Context, m *models.Monitor, timeout time.Duration) Outcome {
	client := &http.Client{Timeout: timeout, Transport: h.transport}

	method := strings.ToUpper(m.HTTPMethod.ValueOrZero())
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, m.URL(), nil)
	if err != nil {
		return down(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range m.CustomHeaders {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return down("request failed: " + describeNetError(err, timeout))
	}
	latency := elapsedMs(start)
	defer resp.Body.Close()

	out := Outcome{
		Latency:    latency,
		StatusCode: resp.StatusCode,
		Alive:      resp.StatusCode < 400,
		Diagnostic: fmt.Sprintf("HTTP %d - %dms", resp.StatusCode, latency.Int64),
	}
	if m.ExpectedStatusCode.Valid {
		out.Alive = int64(resp.StatusCode) == m.ExpectedStatusCode.Int64
		if !out.Alive {
			out.Diagnostic = fmt.Sprintf("HTTP %d, expected %d", resp.StatusCode, m.ExpectedStatusCode.Int64)
		}
	}

	if out.Alive && m.ContentMatch.ValueOrZero() != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			out.Alive = false
			out.Diagnostic = fmt.Sprintf("failed to read response body: %v", err)
			return out
		}
		if !strings.Contains(string(body), m.ContentMatch.String) {
			out.Alive = false
			out.Diagnostic = fmt.Sprintf("keyword %q not found", m.ContentMatch.String)
			return out
		}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return out
}
