package notification

import (
	"context"
	"net/http"
	"time"
)

// WebhookTransport posts a structured JSON body to an arbitrary endpoint
type WebhookTransport struct {
	client *http.Client
}

func NewWebhookTransport(client *http.Client) *WebhookTransport {
	return &WebhookTransport{client: client}
}

func (w *WebhookTransport) Send(ctx context.Context, target string, message *Message) error {
	payload := map[string]interface{}{
		"title":         message.Title,
		"body":          message.Body,
		"monitor_name":  message.MonitorName,
		"monitor_url":   message.MonitorURL,
		"status":        string(message.Status),
		"response_time": message.Latency,
		"time":          message.Time.Format(time.RFC3339),
		"text":          FormatMessage(message),
	}
	return postJSON(ctx, w.client, target, payload)
}
