package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fuomag9/kabomba-probe/internal/models"
	"github.com/fuomag9/kabomba-probe/internal/notification"
	"github.com/fuomag9/kabomba-probe/internal/store"
)

type fakeProber struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]Outcome
	fallback Outcome
	calls    map[uuid.UUID]int
	hook     func(ctx context.Context, m *models.Monitor) (Outcome, error)
}

func newFakeProber(fallback Outcome) *fakeProber {
	return &fakeProber{outcomes: map[uuid.UUID]Outcome{}, calls: map[uuid.UUID]int{}, fallback: fallback}
}

func (f *fakeProber) Probe(ctx context.Context, m *models.Monitor, timeout time.Duration) (Outcome, error) {
	f.mu.Lock()
	f.calls[m.ID]++
	out, ok := f.outcomes[m.ID]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, m)
	}
	if !ok {
		out = f.fallback
	}
	return out, nil
}

func (f *fakeProber) set(id uuid.UUID, out Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[id] = out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	result notification.Result
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, ev notification.Event) (notification.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.result, f.err
}

type fakeSink struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeSink) Broadcast(msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, msgType)
	return nil
}

func (f *fakeSink) count(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.types {
		if t == msgType {
			n++
		}
	}
	return n
}

// staticRepo serves a fixed monitor list and notification configs
type staticRepo struct {
	mu       sync.Mutex
	monitors []models.Monitor
	configs  map[uuid.UUID]models.NotificationConfig
	err      error
}

func (r *staticRepo) ListMonitors(context.Context) ([]models.Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Monitor(nil), r.monitors...), r.err
}

func (r *staticRepo) GetConfig(_ context.Context, id uuid.UUID) (*models.NotificationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// failingRecorder rejects observations for one monitor, or for all when failFor is nil
type failingRecorder struct {
	store.Recorder
	failFor uuid.UUID
}

func (f *failingRecorder) RecordObservation(ctx context.Context, obs store.Observation) (*models.PingHistory, models.Status, error) {
	if f.failFor == uuid.Nil || obs.MonitorID == f.failFor {
		return nil, models.StatusUnknown, errors.New("disk full")
	}
	return f.Recorder.RecordObservation(ctx, obs)
}

type failingMonitors struct{}

func (failingMonitors) ListMonitors(context.Context) ([]models.Monitor, error) {
	return nil, errors.New("connection refused")
}

var upOutcome = Outcome{Alive: true, Latency: null.IntFrom(12), Diagnostic: "HTTP 200 - 12ms", StatusCode: 200}

func newMonitor(name string, proto models.Protocol) models.Monitor {
	m := models.Monitor{ID: uuid.New(), Name: name, Target: name + ".example.com", Protocol: proto, CheckInterval: 30, Active: true}
	switch proto {
	case models.ProtocolTCP, models.ProtocolUDP:
		m.Port = null.IntFrom(443)
	}
	return m
}

type harness struct {
	store    *store.MemoryStore
	repo     *staticRepo
	prober   *fakeProber
	notifier *fakeNotifier
	sink     *fakeSink
	executor *Executor
}

func newHarness(t *testing.T, cfg ExecutorConfig, monitors ...models.Monitor) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemoryStore(),
		repo:     &staticRepo{monitors: monitors, configs: map[uuid.UUID]models.NotificationConfig{}},
		prober:   newFakeProber(upOutcome),
		notifier: &fakeNotifier{},
		sink:     &fakeSink{},
	}
	h.executor = NewExecutor(cfg, Deps{
		Monitors: h.repo,
		Recorder: h.store,
		Prober:   h.prober,
		Notifier: h.notifier,
		Events:   h.sink,
		Logger:   zap.NewNop(),
	})
	return h
}

func TestRunCycle_MalformedProtocolIsIsolated(t *testing.T) {
	monitors := []models.Monitor{
		newMonitor("a", models.ProtocolHTTP),
		newMonitor("b", models.ProtocolHTTPS),
		newMonitor("c", models.ProtocolTCP),
		newMonitor("d", models.ProtocolICMP),
		newMonitor("e", models.Protocol("SMTP")),
	}
	h := newHarness(t, ExecutorConfig{}, monitors...)

	report, err := h.executor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle should succeed, got %v", err)
	}
	if report.Monitors != 5 || report.Recorded != 4 || report.Failed != 1 {
		t.Fatalf("expected 4 records and 1 failure, got %+v", report)
	}
	if !errors.Is(report.Err(), models.ErrUnsupportedProtocol) {
		t.Fatalf("expected the unsupported protocol in the report, got %v", report.Err())
	}
	for _, m := range monitors[:4] {
		rows, _ := h.store.History(context.Background(), m.ID, 10)
		if len(rows) != 1 || !rows[0].Status || rows[0].ResponseTime.Int64 != 12 {
			t.Fatalf("monitor %s: unexpected history %+v", m.Name, rows)
		}
	}
	if rows, _ := h.store.History(context.Background(), monitors[4].ID, 10); len(rows) != 0 {
		t.Fatalf("malformed monitor must not be recorded, got %+v", rows)
	}
	if h.prober.calls[monitors[4].ID] != 0 {
		t.Fatal("malformed monitor must not be probed")
	}
}

func TestRunCycle_ICMPGoesDown(t *testing.T) {
	m := newMonitor("gw", models.ProtocolICMP)
	h := newHarness(t, ExecutorConfig{}, m)
	ctx := context.Background()

	if err := h.store.Record(ctx, m.ID, models.StatusUp, null.IntFrom(3)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.prober.set(m.ID, Outcome{Alive: false, Diagnostic: "no reply from gw (1 sent, 100% packet loss)"})

	report, err := h.executor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Transitions != 1 {
		t.Fatalf("expected one transition, got %+v", report)
	}

	latest, _ := h.store.Latest(ctx, m.ID)
	if latest == nil || latest.Status || latest.ResponseTime != null.IntFrom(0) {
		t.Fatalf("expected a down record with 0ms, got %+v", latest)
	}
	if len(h.notifier.events) != 1 {
		t.Fatalf("expected one notification attempt, got %d", len(h.notifier.events))
	}
	ev := h.notifier.events[0]
	if ev.Status != models.StatusDown || ev.Previous != models.StatusUp || ev.MonitorID != m.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if status, _ := h.store.LastStatus(ctx, m.ID); status != models.StatusDown {
		t.Fatalf("expected status log to hold down, got %q", status)
	}
}

func TestRunCycle_HTTPSServerErrorKeepsLatency(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTPS)
	h := newHarness(t, ExecutorConfig{}, m)
	h.prober.set(m.ID, Outcome{Alive: false, Latency: null.IntFrom(87), StatusCode: 503, Diagnostic: "HTTP 503 - 87ms"})

	if _, err := h.executor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	latest, _ := h.store.Latest(context.Background(), m.ID)
	if latest == nil || latest.Status || latest.ResponseTime.Int64 != 87 {
		t.Fatalf("expected down with 87ms, got %+v", latest)
	}
}

func TestRunCycle_IdenticalStatusNeverRefires(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, m)
	h.prober.set(m.ID, Outcome{Alive: false, Diagnostic: "request failed: connection refused"})

	first, _ := h.executor.RunCycle(context.Background())
	second, _ := h.executor.RunCycle(context.Background())

	if first.Transitions != 1 || second.Transitions != 0 {
		t.Fatalf("expected 1 then 0 transitions, got %d and %d", first.Transitions, second.Transitions)
	}
	if len(h.notifier.events) != 1 {
		t.Fatalf("expected a single notification attempt, got %d", len(h.notifier.events))
	}

	h.prober.set(m.ID, upOutcome)
	third, _ := h.executor.RunCycle(context.Background())
	if third.Transitions != 1 || len(h.notifier.events) != 2 {
		t.Fatalf("recovery should be a transition, got %+v", third)
	}
}

func TestRunCycle_SuppressFirstObservation(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{Policy: SuppressFirstObservation}, m)
	h.prober.set(m.ID, Outcome{Alive: false})

	report, _ := h.executor.RunCycle(context.Background())
	if report.Transitions != 0 || len(h.notifier.events) != 0 {
		t.Fatalf("first observation should be silent, got %+v", report)
	}
}

func TestRunCycle_NotificationFailureIsNotFatal(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, m)
	h.prober.set(m.ID, Outcome{Alive: false})
	h.notifier.err = errors.New("webhook returned status 500")

	report, err := h.executor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle should succeed, got %v", err)
	}
	if report.NotifyFailures != 1 || report.Recorded != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunCycle_PersistenceFailureIsIsolated(t *testing.T) {
	a, b := newMonitor("a", models.ProtocolHTTP), newMonitor("b", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, a, b)
	h.executor.deps.Recorder = &failingRecorder{Recorder: h.store, failFor: a.ID}

	report, err := h.executor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle should succeed, got %v", err)
	}
	if report.Recorded != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if status, _ := h.store.LastStatus(context.Background(), a.ID); status != models.StatusUnknown {
		t.Fatalf("failed monitor should be skipped entirely, got status %q", status)
	}
}

func TestRunCycle_FailedRecordSkipsDetection(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, m)
	h.executor.deps.Recorder = &failingRecorder{Recorder: h.store}

	for i := 0; i < 2; i++ {
		report, err := h.executor.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
		if report.Recorded != 0 || report.Failed != 1 || report.Transitions != 0 {
			t.Fatalf("cycle %d: unexpected report %+v", i+1, report)
		}
	}
	if len(h.notifier.events) != 0 {
		t.Fatalf("an unrecorded observation must not notify, got %d", len(h.notifier.events))
	}
	if h.sink.count("heartbeat") != 0 {
		t.Fatalf("an unrecorded observation must not be published, got %v", h.sink.types)
	}

	// once the store recovers the first recorded observation is the transition
	h.executor.deps.Recorder = h.store
	report, _ := h.executor.RunCycle(context.Background())
	if report.Transitions != 1 || len(h.notifier.events) != 1 {
		t.Fatalf("expected a single transition after recovery, got %+v", report)
	}
	report, _ = h.executor.RunCycle(context.Background())
	if report.Transitions != 0 || len(h.notifier.events) != 1 {
		t.Fatalf("identical status must not fire again, got %+v", report)
	}
}

func TestRunCycle_AliveWithoutLatencyStoresNull(t *testing.T) {
	m := newMonitor("gw", models.ProtocolICMP)
	h := newHarness(t, ExecutorConfig{}, m)
	h.prober.set(m.ID, Outcome{Alive: true, Diagnostic: "1/1 replies"})

	if _, err := h.executor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	latest, _ := h.store.Latest(context.Background(), m.ID)
	if latest == nil || !latest.Status || latest.ResponseTime.Valid {
		t.Fatalf("expected an up record without a response time, got %+v", latest)
	}
}

func TestRunCycle_InvalidEntriesAreCounted(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, m)
	h.repo.err = &store.InvalidEntriesError{Errs: []error{
		fmt.Errorf("monitor #2: %w: invalid id", models.ErrInvalidMonitor),
	}}

	report, err := h.executor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle should succeed, got %v", err)
	}
	if report.Monitors != 2 || report.Recorded != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !errors.Is(report.Err(), models.ErrInvalidMonitor) {
		t.Fatalf("expected the invalid entry in the report, got %v", report.Err())
	}
}

func TestRunCycle_MonitorLoadFailureIsFatal(t *testing.T) {
	ex := NewExecutor(ExecutorConfig{}, Deps{Monitors: failingMonitors{}, Prober: newFakeProber(upOutcome)})
	if _, err := ex.RunCycle(context.Background()); err == nil {
		t.Fatal("expected an error when monitors cannot be loaded")
	}
}

func TestRunCycle_BoundedConcurrency(t *testing.T) {
	var monitors []models.Monitor
	for i := 0; i < 12; i++ {
		monitors = append(monitors, newMonitor("m", models.ProtocolHTTP))
	}
	h := newHarness(t, ExecutorConfig{MaxConcurrentProbes: 3}, monitors...)

	var inFlight, peak int32
	h.prober.hook = func(ctx context.Context, m *models.Monitor) (Outcome, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return upOutcome, nil
	}

	report, err := h.executor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Recorded != 12 {
		t.Fatalf("expected 12 records, got %+v", report)
	}
	if peak > 3 {
		t.Fatalf("expected at most 3 concurrent probes, saw %d", peak)
	}
	for _, m := range monitors {
		if h.prober.calls[m.ID] != 1 {
			t.Fatalf("monitor %s probed %d times", m.ID, h.prober.calls[m.ID])
		}
	}
}

func TestRunCycle_ProbeTimeoutPlusGrace(t *testing.T) {
	m := newMonitor("slow", models.ProtocolHTTP)
	m.Timeout = null.IntFrom(1)
	h := newHarness(t, ExecutorConfig{Grace: 50 * time.Millisecond}, m)

	var deadline time.Time
	h.prober.hook = func(ctx context.Context, _ *models.Monitor) (Outcome, error) {
		deadline, _ = ctx.Deadline()
		return upOutcome, nil
	}

	start := time.Now()
	if _, err := h.executor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	budget := deadline.Sub(start)
	if budget < time.Second || budget > time.Second+time.Second/2 {
		t.Fatalf("expected a deadline of timeout plus grace, got %s", budget)
	}
}

func TestRunCycle_CancelledProbesAreNotRecorded(t *testing.T) {
	a, b := newMonitor("a", models.ProtocolHTTP), newMonitor("b", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 2)
	h.prober.hook = func(pctx context.Context, _ *models.Monitor) (Outcome, error) {
		started <- struct{}{}
		<-pctx.Done()
		return Outcome{Alive: false, Diagnostic: "probe cancelled"}, nil
	}
	go func() {
		<-started
		<-started
		cancel()
	}()

	report, err := h.executor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !report.Cancelled || report.Recorded != 0 || report.Abandoned != 2 {
		t.Fatalf("expected abandoned probes without records, got %+v", report)
	}
	for _, m := range []models.Monitor{a, b} {
		if rows, _ := h.store.History(context.Background(), m.ID, 10); len(rows) != 0 {
			t.Fatalf("abandoned probe wrote %+v", rows)
		}
	}
}

func TestRunCycle_RejectsOverlappingCycles(t *testing.T) {
	m := newMonitor("a", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, m)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.prober.hook = func(ctx context.Context, _ *models.Monitor) (Outcome, error) {
		close(entered)
		<-release
		return upOutcome, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.executor.RunCycle(context.Background())
		done <- err
	}()

	<-entered
	if _, err := h.executor.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestRunDue_RespectsIntervals(t *testing.T) {
	fast := newMonitor("fast", models.ProtocolHTTP)
	fast.CheckInterval = 10
	slow := newMonitor("slow", models.ProtocolHTTP)
	slow.CheckInterval = 60
	h := newHarness(t, ExecutorConfig{}, fast, slow)

	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r1, _ := h.executor.RunDue(context.Background(), t0)
	if r1.Recorded != 2 || r1.Skipped != 0 {
		t.Fatalf("first run should probe everything, got %+v", r1)
	}

	r2, _ := h.executor.RunDue(context.Background(), t0.Add(5*time.Second))
	if r2.Recorded != 0 || r2.Skipped != 2 {
		t.Fatalf("nothing should be due after 5s, got %+v", r2)
	}

	r3, _ := h.executor.RunDue(context.Background(), t0.Add(10*time.Second))
	if r3.Recorded != 1 || r3.Skipped != 1 {
		t.Fatalf("only the fast monitor should be due after 10s, got %+v", r3)
	}
	if h.prober.calls[fast.ID] != 2 || h.prober.calls[slow.ID] != 1 {
		t.Fatalf("unexpected probe counts fast=%d slow=%d", h.prober.calls[fast.ID], h.prober.calls[slow.ID])
	}
}

func TestRunDue_RetriesUnrecordedMonitors(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTP)
	m.CheckInterval = 60
	h := newHarness(t, ExecutorConfig{}, m)
	h.executor.deps.Recorder = &failingRecorder{Recorder: h.store}

	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if r, _ := h.executor.RunDue(context.Background(), t0); r.Recorded != 0 || r.Failed != 1 {
		t.Fatalf("expected a failed record, got %+v", r)
	}

	h.executor.deps.Recorder = h.store
	r, _ := h.executor.RunDue(context.Background(), t0.Add(5*time.Second))
	if r.Recorded != 1 || r.Skipped != 0 {
		t.Fatalf("unrecorded monitor should stay due, got %+v", r)
	}
	r, _ = h.executor.RunDue(context.Background(), t0.Add(10*time.Second))
	if r.Recorded != 0 || r.Skipped != 1 {
		t.Fatalf("recorded monitor should wait for its interval, got %+v", r)
	}
}

func TestRunCycle_PublishesEvents(t *testing.T) {
	watched := newMonitor("watched", models.ProtocolHTTP)
	h := newHarness(t, ExecutorConfig{}, watched)
	h.notifier.result = notification.Result{Watching: true}

	if _, err := h.executor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if h.sink.count("heartbeat") != 1 || h.sink.count("status_change") != 1 {
		t.Fatalf("unexpected events %v", h.sink.types)
	}

	if _, err := h.executor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if h.sink.count("heartbeat") != 2 || h.sink.count("status_change") != 1 {
		t.Fatalf("status_change must only follow transitions, got %v", h.sink.types)
	}
}

func TestRunCycle_WithDispatcher(t *testing.T) {
	m := newMonitor("api", models.ProtocolHTTPS)
	h := newHarness(t, ExecutorConfig{}, m)

	var sent int32
	transport := transportFunc(func(ctx context.Context, target string, msg *notification.Message) error {
		atomic.AddInt32(&sent, 1)
		return nil
	})
	h.repo.configs[m.ID] = models.NotificationConfig{
		MonitorID: m.ID, WebhookURL: "https://discord.example/hook", Enabled: true,
	}
	h.executor.deps.Notifier = notification.NewDispatcher(h.repo, nil, zap.NewNop(),
		notification.WithTransport(models.ProviderDiscord, transport))

	// first observation is up: a transition, but nothing to deliver
	r1, _ := h.executor.RunCycle(context.Background())
	h.prober.set(m.ID, Outcome{Alive: false, Latency: null.IntFrom(40), StatusCode: 503})
	r2, _ := h.executor.RunCycle(context.Background())

	if r1.Notified != 0 || r2.Notified != 1 || atomic.LoadInt32(&sent) != 1 {
		t.Fatalf("expected exactly the down transition to be delivered, got %d/%d sends=%d", r1.Notified, r2.Notified, sent)
	}
}

func TestRunCycle_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := newMonitor("bad", models.Protocol("FTP"))
	h := newHarness(t, ExecutorConfig{}, m)
	h.executor.log = zap.New(core)

	if _, err := h.executor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if logs.FilterMessage("monitor_invalid").Len() != 1 {
		t.Fatalf("expected a monitor_invalid entry, got %v", logs.All())
	}
	if logs.FilterMessage("cycle_completed").Len() != 1 {
		t.Fatal("expected a cycle_completed entry")
	}
}

type transportFunc func(ctx context.Context, target string, msg *notification.Message) error

func (f transportFunc) Send(ctx context.Context, target string, msg *notification.Message) error {
	return f(ctx, target, msg)
}
