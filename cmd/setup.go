package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the built-in config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Choose a backend in [storage] and fill in its connection settings\n")
	r.writePlain("2. Set USERNAME, PASSWORD and AUTH_SECRET in the environment or a .env file\n")
	r.writePlain("3. Run 'katelyatv serve'\n")
	return nil
}

// SetupDatabase initializes the SQLite database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		path = r.config.SQLite.Path
	}
	if path == "" {
		return fmt.Errorf("%w: sqlite.path or --path", shared.ErrMissingConfig)
	}

	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.SQLite.MaxOpenConns, r.config.SQLite.MaxIdleConns)

	switch {
	case cmd.Bool("status"):
	case cmd.Bool("rollback"):
		r.logger.Info("rolling back the latest migration")
		if err := shared.RollbackMigration(ctx, db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	default:
		r.logger.Info("running database migrations")
		if err := shared.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	version, err := shared.CurrentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	return r.writePlain("Database %s at schema version %d\n", path, version)
}
