package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// NtfyTransport publishes to an ntfy topic URL such as https://ntfy.sh/alerts.
// Credentials in the URL are sent as basic auth.
type NtfyTransport struct {
	client *http.Client
}

func NewNtfyTransport(client *http.Client) *NtfyTransport {
	return &NtfyTransport{client: client}
}

func (n *NtfyTransport) Send(ctx context.Context, target string, message *Message) error {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("ntfy: target must be a topic URL, got %q", target)
	}
	user := u.User
	u.User = nil

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(FormatMessage(message)))
	if err != nil {
		return fmt.Errorf("ntfy: failed to create request: %w", err)
	}
	req.Header.Set("Title", message.Title)
	req.Header.Set("User-Agent", userAgent)
	if message.Status.IsUp() {
		req.Header.Set("Priority", "3")
		req.Header.Set("Tags", "white_check_mark")
	} else {
		req.Header.Set("Priority", "4")
		req.Header.Set("Tags", "x,warning")
	}
	if strings.HasPrefix(message.MonitorURL, "http://") || strings.HasPrefix(message.MonitorURL, "https://") {
		req.Header.Set("Actions", "view, Open target, "+message.MonitorURL)
	}
	if user != nil {
		password, _ := user.Password()
		req.SetBasicAuth(user.Username(), password)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: server returned status %d", resp.StatusCode)
	}
	return nil
}
