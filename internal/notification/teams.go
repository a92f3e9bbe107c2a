package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TeamsTransport posts a MessageCard to a Microsoft Teams incoming webhook
type TeamsTransport struct {
	client *http.Client
}

func NewTeamsTransport(client *http.Client) *TeamsTransport {
	return &TeamsTransport{client: client}
}

func (t *TeamsTransport) Send(ctx context.Context, target string, message *Message) error {
	themeColor := "FF0000"
	if message.Status.IsUp() {
		themeColor = "00FF00"
	}

	facts := []map[string]string{
		{"name": "Monitor", "value": message.MonitorName},
		{"name": "Status", "value": message.Status.String()},
		{"name": "Response Time", "value": message.ResponseTime()},
	}
	if message.MonitorURL != "" {
		facts = append(facts, map[string]string{"name": "Target", "value": message.MonitorURL})
	}
	facts = append(facts, map[string]string{"name": "Time", "value": message.Time.Format(time.RFC3339)})

	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"summary":    message.Title,
		"themeColor": themeColor,
		"title":      message.Title,
		"text":       message.Body,
		"sections": []map[string]interface{}{
			{"facts": facts},
		},
	}
	if err := postJSON(ctx, t.client, target, payload); err != nil {
		return fmt.Errorf("teams: %w", err)
	}
	return nil
}
