package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
)

// PingHistory is one persisted observation of a monitor
type PingHistory struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID uuid.UUID `json:"monitor_id" gorm:"not null;index:idx_ping_history_monitor_time"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_ping_history_monitor_time,sort:desc"`
	// ResponseTime in milliseconds. 0 when the probe failed entirely, null when
	// the target was up but no latency could be measured.
	ResponseTime null.Int `json:"response_time"`
	Status       bool     `json:"status"`
}

// TableName specifies the table name for PingHistory
func (PingHistory) TableName() string {
	return "ping_history"
}

// StatusEntry is the status log consulted for transition detection
type StatusEntry struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID    uuid.UUID `json:"monitor_id" gorm:"not null;index:idx_monitor_status_monitor_time"`
	Status       Status    `json:"status" gorm:"not null"`
	ResponseTime null.Int  `json:"response_time"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;index:idx_monitor_status_monitor_time,sort:desc"`
}

// TableName specifies the table name for StatusEntry
func (StatusEntry) TableName() string {
	return "monitor_status"
}
