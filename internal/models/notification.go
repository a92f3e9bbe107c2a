package models

import (
	"github.com/google/uuid"
)

// Provider selects the delivery format of a notification target
type Provider string

const (
	ProviderDiscord Provider = "discord"
	ProviderSlack   Provider = "slack"
	ProviderWebhook Provider = "webhook"
	ProviderTeams   Provider = "teams"
	ProviderNtfy    Provider = "ntfy"
)

// DiscordWebhook stores a monitor's notification target
type DiscordWebhook struct {
	MonitorID  uuid.UUID `json:"monitor_id" gorm:"primaryKey"`
	WebhookURL string    `json:"webhook_url" gorm:"not null"`
	Provider   Provider  `json:"provider" gorm:"default:discord"`
}

// TableName specifies the table name for DiscordWebhook
func (DiscordWebhook) TableName() string {
	return "discord_webhooks"
}

// AutoNotification holds the per-monitor alert switches
type AutoNotification struct {
	MonitorID  uuid.UUID `json:"monitor_id" gorm:"primaryKey"`
	IsEnabled  bool      `json:"is_enabled"`
	IsWatching bool      `json:"is_watching"`
}

// TableName specifies the table name for AutoNotification
func (AutoNotification) TableName() string {
	return "auto_notifications"
}

// NotificationConfig is the joined view the dispatcher works from
type NotificationConfig struct {
	MonitorID  uuid.UUID `json:"monitor_id" yaml:"monitor_id"`
	WebhookURL string    `json:"webhook_url" yaml:"webhook_url"`
	Provider   Provider  `json:"provider" yaml:"provider"`
	Enabled    bool      `json:"enabled" yaml:"enabled"`
	Watching   bool      `json:"watching" yaml:"watching"`
}
