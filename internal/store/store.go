// Package store persists probe results and reads monitor definitions.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

const (
	// DefaultHistoryLimit is used when a caller asks for a non-positive limit
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps a single history read
	MaxHistoryLimit = 1000
)

// ResultStore is the append-only ping history
type ResultStore interface {
	Append(ctx context.Context, monitorID uuid.UUID, responseTime null.Int, up bool) (*models.PingHistory, error)
	// Latest returns nil when the monitor has no history
	Latest(ctx context.Context, monitorID uuid.UUID) (*models.PingHistory, error)
	// History returns at most limit records, newest first
	History(ctx context.Context, monitorID uuid.UUID, limit int) ([]models.PingHistory, error)
}

// StatusLog records the normalized status used for transition detection
type StatusLog interface {
	// LastStatus returns models.StatusUnknown when nothing was recorded yet
	LastStatus(ctx context.Context, monitorID uuid.UUID) (models.Status, error)
	Record(ctx context.Context, monitorID uuid.UUID, status models.Status, latency null.Int) error
}

// Observation is one probe result as the executor persists it
type Observation struct {
	MonitorID uuid.UUID
	Status    models.Status
	// ResponseTime goes to the ping history, Latency to the status log
	ResponseTime null.Int
	Latency      null.Int
}

// Recorder writes an observation to the ping history and the status log as
// one unit. It returns the new history row and the status that preceded the
// observation. On error neither write is kept.
type Recorder interface {
	RecordObservation(ctx context.Context, obs Observation) (*models.PingHistory, models.Status, error)
}

// MonitorRepository supplies the monitor definitions to probe
type MonitorRepository interface {
	ListMonitors(ctx context.Context) ([]models.Monitor, error)
}

// clampResponseTime drops negative latencies to 0
func clampResponseTime(ms null.Int) null.Int {
	if ms.Valid && ms.Int64 < 0 {
		return null.IntFrom(0)
	}
	return ms
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Pruner drops ping history older than a cutoff. The status log is kept so
// transition detection survives retention.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}
