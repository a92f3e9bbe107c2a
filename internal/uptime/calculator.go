package uptime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"gorm.io/gorm"

	"github.com/fuomag9/kabomba-probe/internal/models"
	"github.com/fuomag9/kabomba-probe/internal/store"
)

// Periods accepted by ParsePeriod
var periods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// ParsePeriod maps "24h", "7d", "30d" and "90d" to a duration. Empty means 24h.
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = "24h"
	}
	d, ok := periods[s]
	if !ok {
		return 0, fmt.Errorf("invalid period %q: use 24h, 7d, 30d or 90d", s)
	}
	return d, nil
}

// Stats represents uptime statistics for a monitor
type Stats struct {
	MonitorID        uuid.UUID  `json:"monitor_id"`
	UptimePercentage float64    `json:"uptime_percentage"`
	TotalChecks      int        `json:"total_checks"`
	UpChecks         int        `json:"up_checks"`
	DownChecks       int        `json:"down_checks"`
	AveragePing      null.Float `json:"average_ping"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
}

func (s *Stats) finish() {
	s.DownChecks = s.TotalChecks - s.UpChecks
	if s.TotalChecks > 0 {
		s.UptimePercentage = float64(s.UpChecks) / float64(s.TotalChecks) * 100
	}
}

// Calculator aggregates ping history in SQL
type Calculator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCalculator creates a new uptime calculator
func NewCalculator(db *gorm.DB) *Calculator {
	return &Calculator{db: db, now: time.Now}
}

// ForPeriod calculates uptime over the trailing window ending now
func (c *Calculator) ForPeriod(ctx context.Context, monitorID uuid.UUID, period time.Duration) (*Stats, error) {
	end := c.now().UTC()
	return c.ForRange(ctx, monitorID, end.Add(-period), end)
}

// ForRange calculates uptime between two instants, both inclusive
func (c *Calculator) ForRange(ctx context.Context, monitorID uuid.UUID, start, end time.Time) (*Stats, error) {
	var row struct {
		TotalChecks int
		UpChecks    int
		AveragePing null.Float
	}
	err := c.db.WithContext(ctx).
		Model(&models.PingHistory{}).
		Select(`COUNT(*) AS total_checks,
			COALESCE(SUM(CASE WHEN status THEN 1 ELSE 0 END), 0) AS up_checks,
			AVG(CASE WHEN status THEN response_time END) AS average_ping`).
		Where("monitor_id = ? AND timestamp >= ? AND timestamp <= ?", monitorID, start.UTC(), end.UTC()).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("calculate uptime for %s: %w", monitorID, err)
	}

	stats := &Stats{
		MonitorID:   monitorID,
		TotalChecks: row.TotalChecks,
		UpChecks:    row.UpChecks,
		AveragePing: row.AveragePing,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
	}
	stats.finish()
	return stats, nil
}

// HistoryCalculator computes uptime from the most recent records of a
// ResultStore. Used when no database is configured.
type HistoryCalculator struct {
	results store.ResultStore
	now     func() time.Time
}

func NewHistoryCalculator(results store.ResultStore) *HistoryCalculator {
	return &HistoryCalculator{results: results, now: time.Now}
}

func (c *HistoryCalculator) ForPeriod(ctx context.Context, monitorID uuid.UUID, period time.Duration) (*Stats, error) {
	end := c.now().UTC()
	start := end.Add(-period)

	rows, err := c.results.History(ctx, monitorID, store.MaxHistoryLimit)
	if err != nil {
		return nil, err
	}
	return Summarize(monitorID, rows, start, end), nil
}

// Summarize aggregates the records that fall inside [start, end]
func Summarize(monitorID uuid.UUID, rows []models.PingHistory, start, end time.Time) *Stats {
	stats := &Stats{MonitorID: monitorID, StartTime: start, EndTime: end}
	var pingSum, pingCount int64
	for _, r := range rows {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		stats.TotalChecks++
		if r.Status {
			stats.UpChecks++
			if r.ResponseTime.Valid {
				pingSum += r.ResponseTime.Int64
				pingCount++
			}
		}
	}
	if pingCount > 0 {
		stats.AveragePing = null.FloatFrom(float64(pingSum) / float64(pingCount))
	}
	stats.finish()
	return stats
}
