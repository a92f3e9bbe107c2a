package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/kabomba-probe/internal/api"
	"github.com/fuomag9/kabomba-probe/internal/config"
	"github.com/fuomag9/kabomba-probe/internal/database"
	"github.com/fuomag9/kabomba-probe/internal/logging"
	"github.com/fuomag9/kabomba-probe/internal/monitor"
	"github.com/fuomag9/kabomba-probe/internal/notification"
	"github.com/fuomag9/kabomba-probe/internal/store"
	"github.com/fuomag9/kabomba-probe/internal/uptime"
)

// app holds the wired services shared by the commands
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB // nil in memory mode

	monitors store.MonitorRepository
	results  store.ResultStore
	recorder store.Recorder
	configs  notification.ConfigRepository
	pruner   store.Pruner
	uptime   api.UptimeSource
	prober   *monitor.Prober
}

// loadConfig loads the configuration and builds the logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings {
		log.Warn("config_warning", zap.String("warning", w))
	}
	return cfg, log, nil
}

// newApp connects the configured backend. With a database, migrations run
// first and MONITORS_FILE, when set, is upserted into it.
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg: cfg,
		log: log,
		prober: monitor.NewProber(monitor.ProberOptions{
			AllowPrivateIPs: cfg.Probe.AllowPrivateIPs,
			PingPrivileged:  cfg.Probe.PingPrivileged,
		}),
	}

	if cfg.Database.Type == "memory" {
		file := store.NewFileRepository(cfg.MonitorsFile)
		mem := store.NewMemoryStore()
		a.monitors, a.configs = file, file
		a.results, a.recorder, a.pruner = mem, mem, mem
		a.uptime = uptime.NewHistoryCalculator(mem)
		log.Info("backend_ready", zap.String("type", "memory"), zap.String("monitors_file", cfg.MonitorsFile))
		return a, nil
	}

	if err := database.RunMigrations(ctx, cfg.Database, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db

	gs := store.NewGormStore(db)
	a.monitors, a.configs = gs, gs
	a.results, a.recorder, a.pruner = gs, gs, gs
	a.uptime = uptime.NewCalculator(db)

	if cfg.MonitorsFile != "" {
		if err := seedFromFile(ctx, gs, store.NewFileRepository(cfg.MonitorsFile), log); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Info("backend_ready", zap.String("type", cfg.Database.Type))
	return a, nil
}

// seedFromFile upserts the file's monitors and notify blocks. Entries that
// cannot be decoded are logged and left out.
func seedFromFile(ctx context.Context, gs *store.GormStore, file *store.FileRepository, log *zap.Logger) error {
	monitors, err := file.AllMonitors(ctx)
	var invalid *store.InvalidEntriesError
	if errors.As(err, &invalid) {
		for _, entryErr := range invalid.Errs {
			log.Warn("monitors_file_entry_skipped", zap.Error(entryErr))
		}
		err = nil
	}
	if err != nil {
		return err
	}
	if err := gs.SaveMonitors(ctx, monitors); err != nil {
		return fmt.Errorf("seed monitors: %w", err)
	}
	configs, err := file.NotificationConfigs(ctx)
	if err != nil {
		return err
	}
	for _, c := range configs {
		if err := gs.SaveNotificationConfig(ctx, c); err != nil {
			return fmt.Errorf("seed notification config: %w", err)
		}
	}
	return nil
}

// newExecutor wires the cycle executor. events may be nil.
func (a *app) newExecutor(events monitor.EventSink) *monitor.Executor {
	dispatcher := notification.NewDispatcher(a.configs,
		&http.Client{Timeout: a.cfg.Notify.Timeout},
		a.log.Named("notification"),
		notification.WithRatePerMinute(a.cfg.Notify.RatePerMinute))

	return monitor.NewExecutor(monitor.ExecutorConfig{
		MaxConcurrentProbes: a.cfg.Probe.MaxConcurrent,
		DefaultTimeout:      a.cfg.Probe.DefaultTimeout,
		Grace:               a.cfg.Probe.Grace,
		Policy:              monitor.ParseTransitionPolicy(a.cfg.Probe.FirstObservation),
	}, monitor.Deps{
		Monitors: a.monitors,
		Recorder: a.recorder,
		Prober:   a.prober,
		Notifier: dispatcher,
		Events:   events,
		Logger:   a.log.Named("executor"),
	})
}

// Close releases the database pool and pooled probe connections
func (a *app) Close() {
	if a.prober != nil {
		a.prober.Close()
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.log.Warn("database_close_failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
