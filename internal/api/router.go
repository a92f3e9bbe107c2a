package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuomag9/kabomba-probe/internal/config"
	"github.com/fuomag9/kabomba-probe/internal/store"
	"github.com/fuomag9/kabomba-probe/internal/websocket"
)

// Deps are the services behind the HTTP API. Hub is optional.
type Deps struct {
	Cycles   CycleRunner
	Monitors store.MonitorRepository
	Results  store.ResultStore
	Uptime   UptimeSource
	Hub      *websocket.Hub
	Logger   *zap.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	log := deps.Logger.Named("api")
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	apiLimiter := NewRateLimiter(rate.Every(100*time.Millisecond), 50)
	triggerLimiter := NewRateLimiter(rate.Every(2*time.Second), 5)

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(apiLimiter))
		r.Use(AuthMiddleware(cfg.JWTSecret, cfg.TriggerKeyHash))

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(triggerLimiter))
			r.Post("/cycle/run", HandleRunCycle(deps.Cycles, log))
			r.Get("/run-monitoring", HandleRunCycle(deps.Cycles, log))
		})

		r.Get("/monitors/{id}/history", HandleGetHistory(deps.Results, log))
		r.Get("/monitors/{id}/latest", HandleGetLatest(deps.Results, log))
		r.Get("/monitors/{id}/uptime", HandleGetMonitorUptime(deps.Uptime, log))
	})

	var clients ClientCounter
	if deps.Hub != nil {
		clients = deps.Hub
		r.Get("/ws", deps.Hub.HandleWebSocket)
	}

	// Prometheus metrics endpoint (no auth required)
	r.Get("/metrics", HandlePrometheusMetrics(deps.Monitors, deps.Results, deps.Uptime, clients, log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
