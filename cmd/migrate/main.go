package main

// Run database migrations:
//   go run ./cmd/migrate up
//   go run ./cmd/migrate down
//   go run ./cmd/migrate status

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"brandkit-backend/internal/shared/config"
	"brandkit-backend/internal/shared/storage/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("migrate: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the brand asset schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withDB(func(ctx context.Context, cmd *cobra.Command, sqlDB *sql.DB) error {
				return db.RunMigrations(ctx, sqlDB)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withDB(func(ctx context.Context, cmd *cobra.Command, sqlDB *sql.DB) error {
				return db.RollbackLast(ctx, sqlDB)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: withDB(func(ctx context.Context, cmd *cobra.Command, sqlDB *sql.DB) error {
				version, err := db.MigrationVersion(ctx, sqlDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			}),
		},
	)
	return root
}

func withDB(fn func(ctx context.Context, cmd *cobra.Command, sqlDB *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		ctx := context.Background()
		opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer sqlDB.Close()
		return fn(ctx, cmd, sqlDB)
	}
}
