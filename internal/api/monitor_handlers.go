package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/models"
	"github.com/fuomag9/kabomba-probe/internal/store"
)

// HistoryResponse lists ping history newest first
type HistoryResponse struct {
	MonitorID uuid.UUID            `json:"monitor_id"`
	Limit     int                  `json:"limit"`
	History   []models.PingHistory `json:"history"`
}

func monitorIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid monitor ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// HandleGetHistory returns the latest ping history of a monitor
func HandleGetHistory(results store.ResultStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorIDParam(w, r)
		if !ok {
			return
		}

		limit := store.DefaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, store.MaxHistoryLimit)
		}

		rows, err := results.History(r.Context(), id, limit)
		if err != nil {
			log.Error("history_read_failed", zap.String("monitor_id", id.String()), zap.Error(err))
			http.Error(w, "Failed to fetch ping history", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []models.PingHistory{}
		}

		writeJSON(w, http.StatusOK, HistoryResponse{MonitorID: id, Limit: limit, History: rows})
	}
}

// HandleGetLatest returns the most recent ping of a monitor
func HandleGetLatest(results store.ResultStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorIDParam(w, r)
		if !ok {
			return
		}

		rec, err := results.Latest(r.Context(), id)
		if err != nil {
			log.Error("history_read_failed", zap.String("monitor_id", id.String()), zap.Error(err))
			http.Error(w, "Failed to fetch ping history", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.Error(w, "No ping history for monitor", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}
