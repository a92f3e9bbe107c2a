package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fuomag9/kabomba-probe/internal/database"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Database.Type == "memory" {
			return errors.New("DATABASE_TYPE is memory: nothing to migrate")
		}
		return database.RunMigrations(cmd.Context(), cfg.Database, log)
	},
}
