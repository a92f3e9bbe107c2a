package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// GormStore keeps monitors, results and notification settings in a SQL database
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Append(ctx context.Context, monitorID uuid.UUID, responseTime null.Int, up bool) (*models.PingHistory, error) {
	return appendHistory(s.db.WithContext(ctx), monitorID, responseTime, up, s.now())
}

func appendHistory(tx *gorm.DB, monitorID uuid.UUID, responseTime null.Int, up bool, at time.Time) (*models.PingHistory, error) {
	rec := &models.PingHistory{
		MonitorID:    monitorID,
		Timestamp:    at.UTC(),
		ResponseTime: clampResponseTime(responseTime),
		Status:       up,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("append ping history for %s: %w", monitorID, err)
	}
	return rec, nil
}

func (s *GormStore) Latest(ctx context.Context, monitorID uuid.UUID) (*models.PingHistory, error) {
	rows, err := s.History(ctx, monitorID, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *GormStore) History(ctx context.Context, monitorID uuid.UUID, limit int) ([]models.PingHistory, error) {
	var rows []models.PingHistory
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("timestamp DESC").Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load ping history for %s: %w", monitorID, err)
	}
	return rows, nil
}

func (s *GormStore) LastStatus(ctx context.Context, monitorID uuid.UUID) (models.Status, error) {
	return lastStatus(s.db.WithContext(ctx), monitorID)
}

func lastStatus(tx *gorm.DB, monitorID uuid.UUID) (models.Status, error) {
	var rows []models.StatusEntry
	err := tx.
		Where("monitor_id = ?", monitorID).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return models.StatusUnknown, fmt.Errorf("load last status for %s: %w", monitorID, err)
	}
	if len(rows) == 0 {
		return models.StatusUnknown, nil
	}
	return rows[0].Status, nil
}

func (s *GormStore) Record(ctx context.Context, monitorID uuid.UUID, status models.Status, latency null.Int) error {
	return recordStatus(s.db.WithContext(ctx), monitorID, status, latency, s.now())
}

func recordStatus(tx *gorm.DB, monitorID uuid.UUID, status models.Status, latency null.Int, at time.Time) error {
	entry := &models.StatusEntry{
		MonitorID:    monitorID,
		Status:       status,
		ResponseTime: latency,
		CreatedAt:    at.UTC(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("record status for %s: %w", monitorID, err)
	}
	return nil
}

// RecordObservation reads the previous status and writes the history row and
// the status entry in one transaction
func (s *GormStore) RecordObservation(ctx context.Context, obs Observation) (*models.PingHistory, models.Status, error) {
	var (
		rec      *models.PingHistory
		previous models.Status
	)
	at := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if previous, err = lastStatus(tx, obs.MonitorID); err != nil {
			return err
		}
		if rec, err = appendHistory(tx, obs.MonitorID, obs.ResponseTime, obs.Status.IsUp(), at); err != nil {
			return err
		}
		return recordStatus(tx, obs.MonitorID, obs.Status, obs.Latency, at)
	})
	if err != nil {
		return nil, models.StatusUnknown, err
	}
	return rec, previous, nil
}

// ListMonitors returns the active monitors in creation order
func (s *GormStore) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&monitors).Error
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	return monitors, nil
}

// GetConfig joins the webhook target with the monitor's alert switches.
// A monitor without a target has no config.
func (s *GormStore) GetConfig(ctx context.Context, monitorID uuid.UUID) (*models.NotificationConfig, error) {
	var row struct {
		WebhookURL string
		Provider   string
		IsEnabled  null.Bool
		IsWatching null.Bool
	}
	res := s.db.WithContext(ctx).Raw(`
		SELECT d.webhook_url, d.provider, an.is_enabled, an.is_watching
		FROM discord_webhooks d
		LEFT JOIN auto_notifications an ON an.monitor_id = d.monitor_id
		WHERE d.monitor_id = ?`, monitorID).Scan(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("load notification config for %s: %w", monitorID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	provider := models.Provider(row.Provider)
	if provider == "" {
		provider = models.ProviderDiscord
	}
	return &models.NotificationConfig{
		MonitorID:  monitorID,
		WebhookURL: row.WebhookURL,
		Provider:   provider,
		Enabled:    row.IsEnabled.ValueOrZero(),
		Watching:   row.IsWatching.ValueOrZero(),
	}, nil
}

// SaveMonitors upserts monitor definitions, used to seed from a monitors file
func (s *GormStore) SaveMonitors(ctx context.Context, monitors []models.Monitor) error {
	if len(monitors) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&monitors).Error
	if err != nil {
		return fmt.Errorf("save monitors: %w", err)
	}
	return nil
}

// SaveNotificationConfig upserts the webhook target and alert switches of one monitor
func (s *GormStore) SaveNotificationConfig(ctx context.Context, cfg models.NotificationConfig) error {
	provider := cfg.Provider
	if provider == "" {
		provider = models.ProviderDiscord
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hook := models.DiscordWebhook{MonitorID: cfg.MonitorID, WebhookURL: cfg.WebhookURL, Provider: provider}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&hook).Error; err != nil {
			return fmt.Errorf("save webhook for %s: %w", cfg.MonitorID, err)
		}
		auto := models.AutoNotification{MonitorID: cfg.MonitorID, IsEnabled: cfg.Enabled, IsWatching: cfg.Watching}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&auto).Error; err != nil {
			return fmt.Errorf("save auto notification for %s: %w", cfg.MonitorID, err)
		}
		return nil
	})
}

func (s *GormStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", before.UTC()).
		Delete(&models.PingHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune ping history: %w", res.Error)
	}
	return res.RowsAffected, nil
}
