package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/iho/cardledger/internal/infrastructure/logger"
	pginfra "github.com/iho/cardledger/internal/infrastructure/postgres"
)

// migrateCmd runs schema migrations directly against the database, for
// operators who need to roll a release back.
func migrateCmd() *cobra.Command {
	var databaseURL, path string

	cmd := &cobra.Command{Use: "migrate", Short: "Apply or roll back database migrations"}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.PersistentFlags().StringVar(&path, "path", envOr("MIGRATIONS_PATH", "migrations"), "Directory holding the migration files")

	log := logger.NewWithWriter(logger.Config{Level: "info", Format: "console"}, os.Stderr)

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabaseURL(databaseURL); err != nil {
				return err
			}
			return pginfra.RunMigrations(databaseURL, path, log)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabaseURL(databaseURL); err != nil {
				return err
			}
			return pginfra.RunMigrationsDown(databaseURL, path, steps, log)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

var errMissingDatabaseURL = errors.New("--database-url or DATABASE_URL is required")

func requireDatabaseURL(databaseURL string) error {
	if databaseURL == "" {
		return errMissingDatabaseURL
	}
	return nil
}
