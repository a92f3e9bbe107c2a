package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/api"
	"github.com/fuomag9/kabomba-probe/internal/jobs"
	"github.com/fuomag9/kabomba-probe/internal/websocket"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the cycle scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		cfg, log := a.cfg, a.log

		hub := websocket.NewHub(api.TokenValidator(cfg.JWTSecret), cfg.CORSOrigins, log)
		go hub.Run(ctx)

		executor := a.newExecutor(hub)

		scheduler := jobs.NewScheduler(jobs.Config{
			CycleSchedule: cfg.CycleSchedule,
			Retention:     cfg.HistoryRetention,
		}, executor, a.pruner, log)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()

		router := api.NewRouter(cfg, api.Deps{
			Cycles:   executor,
			Monitors: a.monitors,
			Results:  a.results,
			Uptime:   a.uptime,
			Hub:      hub,
			Logger:   log,
		})

		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// a synchronous cycle trigger can outlast the probe timeout several times
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("server_starting", zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}

		log.Info("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server_forced_shutdown", zap.Error(err))
			return err
		}

		// websocket connections are hijacked and not covered by Shutdown
		stop()
		clientsGone := make(chan struct{})
		go func() {
			hub.Wait()
			close(clientsGone)
		}()
		select {
		case <-clientsGone:
		case <-shutdownCtx.Done():
			log.Warn("websocket_clients_not_drained")
		}
		log.Info("server_exited")
		return nil
	},
}
