package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/monitor"
)

// CycleRunner triggers a full monitoring cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (*monitor.CycleReport, error)
}

// CycleResponse is the body of the cycle trigger endpoints
type CycleResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Error   string               `json:"error,omitempty"`
	Report  *monitor.CycleReport `json:"report,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleRunCycle runs one cycle synchronously. Per-monitor failures are part
// of a successful response; only a failure to load monitors is a 500.
func HandleRunCycle(runner CycleRunner, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := runner.RunCycle(r.Context())
		switch {
		case errors.Is(err, monitor.ErrCycleInProgress):
			writeJSON(w, http.StatusConflict, CycleResponse{
				Success: false,
				Message: "A monitoring cycle is already running",
				Error:   err.Error(),
			})
			return
		case err != nil:
			log.Error("cycle_trigger_failed",
				zap.String("subject", SubjectFromContext(r.Context())),
				zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, CycleResponse{
				Success: false,
				Message: "Error running monitoring",
				Error:   err.Error(),
			})
			return
		}

		message := "Monitoring completed successfully"
		if report.Cancelled {
			message = "Monitoring cycle was cancelled"
		}
		writeJSON(w, http.StatusOK, CycleResponse{
			Success: true,
			Message: message,
			Report:  report,
		})
	}
}
