package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/kabomba-probe/internal/store"
)

// ClientCounter reports connected live feed clients
type ClientCounter interface {
	ClientCount() int
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// HandlePrometheusMetrics exports metrics in Prometheus format
func HandlePrometheusMetrics(monitors store.MonitorRepository, results store.ResultStore, source UptimeSource, clients ClientCounter, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		list, err := monitors.ListMonitors(ctx)
		if err != nil {
			log.Error("metrics_load_monitors_failed", zap.Error(err))
			http.Error(w, "Failed to fetch monitors", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintln(w, "# HELP uptime_monitor_up Monitor status (1 = up, 0 = down)")
		fmt.Fprintln(w, "# TYPE uptime_monitor_up gauge")
		fmt.Fprintln(w, "# HELP uptime_monitor_ping_ms Monitor response time in milliseconds")
		fmt.Fprintln(w, "# TYPE uptime_monitor_ping_ms gauge")
		fmt.Fprintln(w, "# HELP uptime_monitor_uptime_percentage Monitor uptime percentage (24h)")
		fmt.Fprintln(w, "# TYPE uptime_monitor_uptime_percentage gauge")
		fmt.Fprintln(w, "# HELP uptime_monitor_total_checks Number of checks (24h)")
		fmt.Fprintln(w, "# TYPE uptime_monitor_total_checks gauge")

		for _, m := range list {
			labels := fmt.Sprintf(`monitor_id="%s",monitor_name="%s",monitor_protocol="%s"`,
				m.ID, labelEscaper.Replace(m.Name), labelEscaper.Replace(string(m.Protocol)))

			latest, err := results.Latest(ctx, m.ID)
			switch {
			case err != nil:
				log.Warn("metrics_latest_failed", zap.String("monitor_id", m.ID.String()), zap.Error(err))
			case latest != nil:
				up := 0
				if latest.Status {
					up = 1
				}
				fmt.Fprintf(w, "uptime_monitor_up{%s} %d\n", labels, up)
				if latest.ResponseTime.Valid {
					fmt.Fprintf(w, "uptime_monitor_ping_ms{%s} %d\n", labels, latest.ResponseTime.Int64)
				}
			}

			stats, err := source.ForPeriod(ctx, m.ID, 24*time.Hour)
			if err != nil {
				log.Warn("metrics_uptime_failed", zap.String("monitor_id", m.ID.String()), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "uptime_monitor_uptime_percentage{%s} %.2f\n", labels, stats.UptimePercentage)
			fmt.Fprintf(w, "uptime_monitor_total_checks{%s} %d\n", labels, stats.TotalChecks)
		}

		fmt.Fprintln(w, "# HELP uptime_system_active_monitors Number of active monitors")
		fmt.Fprintln(w, "# TYPE uptime_system_active_monitors gauge")
		fmt.Fprintf(w, "uptime_system_active_monitors %d\n", len(list))

		if clients != nil {
			fmt.Fprintln(w, "# HELP uptime_system_websocket_clients Connected live feed clients")
			fmt.Fprintln(w, "# TYPE uptime_system_websocket_clients gauge")
			fmt.Fprintf(w, "uptime_system_websocket_clients %d\n", clients.ClientCount())
		}

		fmt.Fprintln(w, "# HELP uptime_system_scrape_timestamp_seconds Unix timestamp of this scrape")
		fmt.Fprintln(w, "# TYPE uptime_system_scrape_timestamp_seconds gauge")
		fmt.Fprintf(w, "uptime_system_scrape_timestamp_seconds %d\n", time.Now().Unix())
	}
}
