package notification

import (
	"context"
	"net/http"
	"time"
)

// DiscordTransport posts alerts to a Discord webhook
type DiscordTransport struct {
	client   *http.Client
	username string
}

func NewDiscordTransport(client *http.Client) *DiscordTransport {
	return &DiscordTransport{client: client, username: "Uptime Kabomba"}
}

func (d *DiscordTransport) Send(ctx context.Context, target string, message *Message) error {
	color := 0xFF0000
	if message.Status.IsUp() {
		color = 0x00FF00
	}

	embed := map[string]interface{}{
		"title":     message.Title,
		"color":     color,
		"timestamp": message.Time.Format(time.RFC3339),
		"fields": []map[string]interface{}{
			{"name": "Monitor", "value": message.MonitorName, "inline": true},
			{"name": "Response Time", "value": message.ResponseTime(), "inline": true},
		},
	}

	payload := map[string]interface{}{
		"username": d.username,
		"content":  FormatMessage(message),
		"embeds":   []interface{}{embed},
	}
	return postJSON(ctx, d.client, target, payload)
}
