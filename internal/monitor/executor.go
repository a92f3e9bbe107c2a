package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/models"
	"github.com/fuomag9/kabomba-probe/internal/notification"
	"github.com/fuomag9/kabomba-probe/internal/store"
)

// ErrCycleInProgress is returned when a cycle is requested while one is running
var ErrCycleInProgress = errors.New("monitoring cycle already in progress")

// ProbeRunner executes a single probe
type ProbeRunner interface {
	Probe(ctx context.Context, m *models.Monitor, timeout time.Duration) (Outcome, error)
}

// Notifier receives status transitions
type Notifier interface {
	Notify(ctx context.Context, ev notification.Event) (notification.Result, error)
}

// EventSink receives live events for observers such as the websocket hub
type EventSink interface {
	Broadcast(msgType string, payload interface{}) error
}

// ExecutorConfig holds the cycle tuning knobs
type ExecutorConfig struct {
	MaxConcurrentProbes int
	DefaultTimeout      time.Duration
	// Grace is added on top of the probe timeout before the probe is abandoned
	Grace  time.Duration
	Policy TransitionPolicy
}

// Deps are the collaborators of an Executor. Events is optional.
type Deps struct {
	Monitors store.MonitorRepository
	Recorder store.Recorder
	Prober   ProbeRunner
	Notifier Notifier
	Events   EventSink
	Logger   *zap.Logger
}

// Heartbeat is the live event published after each recorded probe
type Heartbeat struct {
	MonitorID   uuid.UUID     `json:"monitor_id"`
	MonitorName string        `json:"monitor_name"`
	Status      models.Status `json:"status"`
	Ping        null.Int      `json:"ping"`
	Message     string        `json:"message"`
	Important   bool          `json:"important"`
	Time        time.Time     `json:"time"`
}

// StatusChange is published for watched monitors when their status flips
type StatusChange struct {
	MonitorID   uuid.UUID     `json:"monitor_id"`
	MonitorName string        `json:"monitor_name"`
	Previous    models.Status `json:"previous"`
	Current     models.Status `json:"current"`
	Notified    bool          `json:"notified"`
	Time        time.Time     `json:"time"`
}

// Executor runs monitoring cycles. It has no clock of its own; callers
// trigger RunCycle or RunDue.
type Executor struct {
	cfg  ExecutorConfig
	deps Deps
	log  *zap.Logger

	running sync.Mutex

	lastRunMu sync.Mutex
	lastRun   map[uuid.UUID]time.Time
}

// NewExecutor creates a new monitor executor
func NewExecutor(cfg ExecutorConfig, deps Deps) *Executor {
	if cfg.MaxConcurrentProbes < 1 {
		cfg.MaxConcurrentProbes = 10
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		lastRun: make(map[uuid.UUID]time.Time),
	}
}

// RunCycle probes every active monitor once
func (e *Executor) RunCycle(ctx context.Context) (*CycleReport, error) {
	return e.run(ctx, time.Now(), nil)
}

// RunDue probes the monitors whose check interval elapsed since their last
// recorded run in this process. Monitors never recorded are always due.
func (e *Executor) RunDue(ctx context.Context, now time.Time) (*CycleReport, error) {
	return e.run(ctx, now, func(m *models.Monitor) bool {
		e.lastRunMu.Lock()
		last, ok := e.lastRun[m.ID]
		e.lastRunMu.Unlock()
		return !ok || !now.Before(last.Add(m.Interval()))
	})
}

func (e *Executor) run(ctx context.Context, now time.Time, due func(*models.Monitor) bool) (*CycleReport, error) {
	if !e.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.running.Unlock()

	report := &CycleReport{StartedAt: time.Now().UTC()}

	monitors, err := e.deps.Monitors.ListMonitors(ctx)
	var invalid *store.InvalidEntriesError
	if errors.As(err, &invalid) {
		for _, entryErr := range invalid.Errs {
			e.log.Warn("monitor_invalid", zap.Error(entryErr))
			report.add(monitorResult{err: entryErr})
		}
		report.Monitors += len(invalid.Errs)
		err = nil
	}
	if err != nil {
		e.log.Error("cycle_load_monitors_failed", zap.Error(err))
		return nil, fmt.Errorf("load monitors: %w", err)
	}
	report.Monitors += len(monitors)

	sem := make(chan struct{}, e.cfg.MaxConcurrentProbes)
	var wg sync.WaitGroup

dispatch:
	for i := range monitors {
		m := &monitors[i]
		if due != nil && !due(m) {
			report.Skipped++
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res := e.checkMonitor(ctx, m)
			if res.recorded {
				e.markRun(m.ID, now)
			}
			report.add(res)
		}()
	}
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	if ctx.Err() != nil {
		report.Cancelled = true
	}

	e.log.Info("cycle_completed",
		zap.Int("monitors", report.Monitors),
		zap.Int("probed", report.Probed),
		zap.Int("recorded", report.Recorded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("transitions", report.Transitions),
		zap.Int("notified", report.Notified),
		zap.Int("notify_failures", report.NotifyFailures),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	return report, nil
}

func (e *Executor) markRun(id uuid.UUID, at time.Time) {
	e.lastRunMu.Lock()
	e.lastRun[id] = at
	e.lastRunMu.Unlock()
}

// checkMonitor runs the full pipeline for one monitor: validate, probe,
// persist, detect and notify.
func (e *Executor) checkMonitor(ctx context.Context, m *models.Monitor) monitorResult {
	log := e.log.With(zap.String("monitor_id", m.ID.String()), zap.String("monitor", m.Name))

	if err := m.Validate(); err != nil {
		log.Warn("monitor_invalid", zap.Error(err))
		return monitorResult{err: fmt.Errorf("monitor %s: %w", m.ID, err)}
	}

	timeout := m.ProbeTimeout(e.cfg.DefaultTimeout)
	probeCtx, cancel := context.WithTimeout(ctx, timeout+e.cfg.Grace)
	outcome, err := e.deps.Prober.Probe(probeCtx, m, timeout)
	cancel()
	if err != nil {
		log.Warn("probe_rejected", zap.Error(err))
		return monitorResult{err: fmt.Errorf("monitor %s: %w", m.ID, err)}
	}
	if ctx.Err() != nil {
		log.Info("probe_abandoned", zap.Error(ctx.Err()))
		return monitorResult{abandoned: true}
	}

	res := monitorResult{probed: true}
	status := outcome.Status()

	rec, previous, err := e.deps.Recorder.RecordObservation(ctx, store.Observation{
		MonitorID:    m.ID,
		Status:       status,
		ResponseTime: outcome.ResponseTime(),
		Latency:      outcome.Latency,
	})
	if err != nil {
		log.Error("observation_record_failed", zap.Error(err))
		res.err = fmt.Errorf("monitor %s: %w", m.ID, err)
		return res
	}
	res.recorded = true

	tr := Detect(previous, status, e.cfg.Policy)
	log.Info("probe_completed",
		zap.String("status", status.String()),
		zap.String("previous", previous.String()),
		zap.Any("response_time_ms", rec.ResponseTime),
		zap.String("diagnostic", outcome.Diagnostic),
		zap.Bool("changed", tr.Changed))

	e.publish("heartbeat", Heartbeat{
		MonitorID:   m.ID,
		MonitorName: m.Name,
		Status:      status,
		Ping:        rec.ResponseTime,
		Message:     outcome.Diagnostic,
		Important:   tr.Changed,
		Time:        rec.Timestamp,
	})

	if !tr.Changed {
		return res
	}
	res.transitioned = true

	if e.deps.Notifier == nil {
		return res
	}
	nres, err := e.deps.Notifier.Notify(ctx, notification.Event{
		MonitorID:   m.ID,
		MonitorName: m.Name,
		MonitorURL:  m.Target,
		Status:      status,
		Previous:    previous,
		Diagnostic:  outcome.Diagnostic,
		Latency:     outcome.Latency,
		Time:        rec.Timestamp,
	})
	if err != nil {
		log.Warn("notification_dispatch_failed", zap.Error(err))
		res.notifyErr = fmt.Errorf("monitor %s: notify: %w", m.ID, err)
	}
	res.notified = nres.Sent

	if nres.Watching {
		e.publish("status_change", StatusChange{
			MonitorID:   m.ID,
			MonitorName: m.Name,
			Previous:    previous,
			Current:     status,
			Notified:    nres.Sent,
			Time:        rec.Timestamp,
		})
	}
	return res
}

func (e *Executor) publish(msgType string, payload interface{}) {
	if e.deps.Events == nil {
		return
	}
	if err := e.deps.Events.Broadcast(msgType, payload); err != nil {
		e.log.Debug("event_dropped", zap.String("type", msgType), zap.Error(err))
	}
}

type monitorResult struct {
	probed       bool
	recorded     bool
	abandoned    bool
	transitioned bool
	notified     bool
	err          error
	notifyErr    error
}

// CycleReport summarizes one monitoring cycle
type CycleReport struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Monitors       int       `json:"monitors"`
	Skipped        int       `json:"skipped"`
	Probed         int       `json:"probed"`
	Recorded       int       `json:"recorded"`
	Abandoned      int       `json:"abandoned"`
	Failed         int       `json:"failed"`
	Transitions    int       `json:"transitions"`
	Notified       int       `json:"notified"`
	NotifyFailures int       `json:"notify_failures"`
	Cancelled      bool      `json:"cancelled"`
	Errors         []string  `json:"errors,omitempty"`

	mu   sync.Mutex
	errs error
}

func (r *CycleReport) add(res monitorResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.probed {
		r.Probed++
	}
	if res.recorded {
		r.Recorded++
	}
	if res.abandoned {
		r.Abandoned++
	}
	if res.transitioned {
		r.Transitions++
	}
	if res.notified {
		r.Notified++
	}
	if res.err != nil {
		r.Failed++
		r.errs = multierr.Append(r.errs, res.err)
		r.Errors = append(r.Errors, res.err.Error())
	}
	if res.notifyErr != nil {
		r.NotifyFailures++
		r.errs = multierr.Append(r.errs, res.notifyErr)
		r.Errors = append(r.Errors, res.notifyErr.Error())
	}
}

// Err returns the per-monitor failures of the cycle combined into one error
func (r *CycleReport) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}
