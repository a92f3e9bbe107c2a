package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"github.com/fuomag9/kabomba-probe/internal/models"
)

// MemoryStore keeps ping history and the status log in process memory for
// database-less runs
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	seq      int64
	history  map[uuid.UUID][]models.PingHistory
	statuses map[uuid.UUID][]models.StatusEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		history:  make(map[uuid.UUID][]models.PingHistory),
		statuses: make(map[uuid.UUID][]models.StatusEntry),
	}
}

func (s *MemoryStore) Append(_ context.Context, monitorID uuid.UUID, responseTime null.Int, up bool) (*models.PingHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(monitorID, responseTime, up, s.now()), nil
}

func (s *MemoryStore) appendLocked(monitorID uuid.UUID, responseTime null.Int, up bool, at time.Time) *models.PingHistory {
	s.seq++
	rec := models.PingHistory{
		ID:           s.seq,
		MonitorID:    monitorID,
		Timestamp:    at.UTC(),
		ResponseTime: clampResponseTime(responseTime),
		Status:       up,
	}
	s.history[monitorID] = append(s.history[monitorID], rec)
	return &rec
}

func (s *MemoryStore) Latest(_ context.Context, monitorID uuid.UUID) (*models.PingHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.history[monitorID]
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[len(rows)-1]
	return &rec, nil
}

func (s *MemoryStore) History(_ context.Context, monitorID uuid.UUID, limit int) ([]models.PingHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.history[monitorID]
	n := clampLimit(limit)
	if n > len(rows) {
		n = len(rows)
	}
	out := make([]models.PingHistory, 0, n)
	for i := len(rows) - 1; i >= len(rows)-n; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

func (s *MemoryStore) LastStatus(_ context.Context, monitorID uuid.UUID) (models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatusLocked(monitorID), nil
}

func (s *MemoryStore) lastStatusLocked(monitorID uuid.UUID) models.Status {
	entries := s.statuses[monitorID]
	if len(entries) == 0 {
		return models.StatusUnknown
	}
	return entries[len(entries)-1].Status
}

func (s *MemoryStore) Record(_ context.Context, monitorID uuid.UUID, status models.Status, latency null.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(monitorID, status, latency, s.now())
	return nil
}

func (s *MemoryStore) recordLocked(monitorID uuid.UUID, status models.Status, latency null.Int, at time.Time) {
	s.seq++
	s.statuses[monitorID] = append(s.statuses[monitorID], models.StatusEntry{
		ID:           s.seq,
		MonitorID:    monitorID,
		Status:       status,
		ResponseTime: latency,
		CreatedAt:    at.UTC(),
	})
}

// RecordObservation performs the status lookup and both writes under one lock
func (s *MemoryStore) RecordObservation(_ context.Context, obs Observation) (*models.PingHistory, models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	previous := s.lastStatusLocked(obs.MonitorID)
	rec := s.appendLocked(obs.MonitorID, obs.ResponseTime, obs.Status.IsUp(), at)
	s.recordLocked(obs.MonitorID, obs.Status, obs.Latency, at)
	return rec, previous, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rows := range s.history {
		kept := rows[:0]
		for _, r := range rows {
			if r.Timestamp.Before(before) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		s.history[id] = kept
	}
	return n, nil
}
