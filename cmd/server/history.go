package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fuomag9/kabomba-probe/internal/store"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", store.DefaultHistoryLimit, "number of records to show")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <monitor-id>",
	Short: "Show the latest ping history of a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid monitor id %q: %w", args[0], err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.results.History(cmd.Context(), id, historyLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no ping history")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTATUS\tRESPONSE")
		for _, r := range rows {
			status := "down"
			if r.Status {
				status = "up"
			}
			response := "n/a"
			if r.ResponseTime.Valid {
				response = fmt.Sprintf("%dms", r.ResponseTime.Int64)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Timestamp.Format(time.RFC3339), status, response)
		}
		return w.Flush()
	},
}
