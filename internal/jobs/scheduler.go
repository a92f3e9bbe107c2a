package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/logging"
	"github.com/fuomag9/kabomba-probe/internal/monitor"
	"github.com/fuomag9/kabomba-probe/internal/store"
)

// DefaultPruneSchedule runs history retention daily at 3:14 AM
const DefaultPruneSchedule = "14 3 * * *"

// CycleRunner runs the monitors that are due
type CycleRunner interface {
	RunDue(ctx context.Context, now time.Time) (*monitor.CycleReport, error)
}

// Config selects which jobs are registered. An empty CycleSchedule disables
// the cycle job, a zero Retention the prune job.
type Config struct {
	CycleSchedule string
	PruneSchedule string
	Retention     time.Duration
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	runner CycleRunner
	pruner store.Pruner
	log    *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new job scheduler. pruner may be nil.
func NewScheduler(cfg Config, runner CycleRunner, pruner store.Pruner, log *zap.Logger) *Scheduler {
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = DefaultPruneSchedule
	}
	cronLog := logging.NewCronLogger(log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		cfg:    cfg,
		runner: runner,
		pruner: pruner,
		log:    log.Named("scheduler"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	if s.cfg.CycleSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.CycleSchedule, s.runCycle); err != nil {
			return fmt.Errorf("invalid cycle schedule %q: %w", s.cfg.CycleSchedule, err)
		}
	}
	if s.pruner != nil && s.cfg.Retention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.PruneSchedule, s.pruneHistory); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", s.cfg.PruneSchedule, err)
		}
	}

	s.cron.Start()
	s.log.Info("scheduler_started",
		zap.String("cycle_schedule", s.cfg.CycleSchedule),
		zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler_stopped")
}

func (s *Scheduler) runCycle() {
	report, err := s.runner.RunDue(s.ctx, s.now())
	switch {
	case errors.Is(err, monitor.ErrCycleInProgress):
		s.log.Debug("cycle_skipped", zap.String("reason", "cycle in progress"))
	case err != nil:
		s.log.Error("scheduled_cycle_failed", zap.Error(err))
	case report.Failed > 0:
		s.log.Warn("scheduled_cycle_partial", zap.Int("failed", report.Failed), zap.Error(report.Err()))
	}
}

func (s *Scheduler) pruneHistory() {
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.pruner.Prune(s.ctx, cutoff)
	if err != nil {
		s.log.Error("history_prune_failed", zap.Error(err))
		return
	}
	s.log.Info("history_pruned", zap.Int64("rows", n), zap.Time("before", cutoff))
}
