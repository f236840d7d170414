package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply all pending migrations, or only the given number",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateCmd(cmd, args, 1)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateCmd(cmd, args, -1)
		},
	})
	return cmd
}

// runMigrateCmd applies steps in direction (1 up, -1 down). "up" with no argument migrates fully.
func runMigrateCmd(cmd *cobra.Command, args []string, direction int) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	steps := 0
	if len(args) == 1 {
		steps, err = strconv.Atoi(args[0])
		if err != nil || steps < 1 {
			return fmt.Errorf("steps must be a positive integer, got %q", args[0])
		}
	} else if direction < 0 {
		steps = 1
	}

	source, _ := cmd.Flags().GetString("migrations")
	m, err := migrate.New(source, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if steps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(direction * steps)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", verr)
	}
	logger.Info("Database migrations completed.", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func migrateUp(source, dsn string, logger *zap.Logger) error {
	m, err := migrate.New(source, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully (or no new migrations).")
	return nil
}
