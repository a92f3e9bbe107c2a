package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kabomba-probe",
	Short: "Uptime probe service",
	Long: `kabomba-probe checks HTTP(S), TCP and ICMP targets on a schedule,
keeps their ping history and alerts webhooks when a monitor goes down.

Configuration is read from the environment (DATABASE_TYPE, DATABASE_DSN,
MONITORS_FILE, CYCLE_SCHEDULE, ...).`,
	SilenceUsage: true,
}
