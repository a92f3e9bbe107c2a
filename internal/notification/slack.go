package notification

import (
	"context"
	"net/http"
	"strings"
)

// SlackTransport posts alerts to a Slack incoming webhook
type SlackTransport struct {
	client *http.Client
}

func NewSlackTransport(client *http.Client) *SlackTransport {
	return &SlackTransport{client: client}
}

func (s *SlackTransport) Send(ctx context.Context, target string, message *Message) error {
	icon := ":x:"
	if message.Status.IsUp() {
		icon = ":white_check_mark:"
	}
	payload := map[string]interface{}{
		"username":   "Uptime Kabomba",
		"icon_emoji": icon,
		// Slack mrkdwn uses single asterisks for bold
		"text": strings.ReplaceAll(FormatMessage(message), "**", "*"),
	}
	return postJSON(ctx, s.client, target, payload)
}
