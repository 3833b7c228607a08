package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voyagen/vaulttv/internal/store"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Apply, roll back or inspect the embedded schema migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}
		switch action {
		case "up":
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
		case "down":
			if err := store.RollbackMigrations(cfg.DatabaseURL, migrateSteps); err != nil {
				return err
			}
		case "version":
		default:
			return fmt.Errorf("unknown migrate action %q", action)
		}
		version, dirty, err := store.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back with down")
}
