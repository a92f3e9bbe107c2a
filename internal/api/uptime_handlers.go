package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/uptime"
)

// UptimeSource computes uptime statistics over a trailing window
type UptimeSource interface {
	ForPeriod(ctx context.Context, monitorID uuid.UUID, period time.Duration) (*uptime.Stats, error)
}

// HandleGetMonitorUptime returns uptime statistics for a monitor
func HandleGetMonitorUptime(source UptimeSource, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorIDParam(w, r)
		if !ok {
			return
		}

		period, err := uptime.ParsePeriod(r.URL.Query().Get("period"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := source.ForPeriod(r.Context(), id, period)
		if err != nil {
			log.Error("uptime_failed", zap.String("monitor_id", id.String()), zap.Error(err))
			http.Error(w, "Failed to calculate uptime", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}
