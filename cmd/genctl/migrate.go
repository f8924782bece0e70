package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/storage/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFor(db.ProfileCLI).WithEnv())
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return err
		}
		version, err := db.MigrationVersion(ctx, sqlDB)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated to version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
