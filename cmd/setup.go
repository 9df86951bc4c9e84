package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/tandem/internal/shared"
	"github.com/desertthunder/tandem/internal/store"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, writes any credentials given as flags and prepares the store.
//
// For the sqlite driver pending migrations are applied. The file driver gets its directories created.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			return err
		}
		config, err := shared.LoadConfig(path)
		if err != nil {
			return err
		}
		if err := config.ApplyEnv(r.lookupEnv); err != nil {
			return err
		}
		r.config = config
	}

	changed := false
	for flag, dst := range map[string]*string{
		"client-id":     &r.config.Credentials.Spotify.ClientID,
		"client-secret": &r.config.Credentials.Spotify.ClientSecret,
		"driver":        &r.config.Store.Driver,
	} {
		if v := cmd.String(flag); v != "" {
			*dst = v
			changed = true
		}
	}
	if changed {
		if err := r.config.Validate(); err != nil {
			return err
		}
		if err := shared.SaveConfig(path, r.config); err != nil {
			return err
		}
		r.logger.Info("config updated", "path", path)
	}

	if cmd.Bool("rollback") {
		return r.rollback(ctx)
	}

	if err := r.prepareStore(ctx); err != nil {
		return err
	}

	r.writePlain("✓ Setup complete (%s store)\n", r.config.Store.Driver)
	r.writePlainln("Next steps:")
	if r.config.ValidateSpotify() != nil {
		r.writePlain("1. Set credentials.spotify.client_id and client_secret in %s\n", path)
	} else {
		r.writePlain("1. Spotify credentials are configured\n")
	}
	r.writePlain("2. Run 'tandem serve' and 'tandem register' to sign in the leader\n")
	r.writePlain("3. Run 'tandem worker' to start syncing\n")
	return nil
}

func (r *Runner) prepareStore(ctx context.Context) error {
	switch r.config.Store.Driver {
	case "sqlite":
		r.logger.Info("initializing database", "path", r.config.Database.Path)

		db, err := shared.NewDatabase(ctx, r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()

		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

		applied, err := shared.MigrateUp(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		versions, err := shared.AppliedVersions(ctx, db)
		if err != nil {
			return err
		}
		r.logger.Info("migrations applied", "new", applied, "versions", versions)
		return nil

	case "file", "":
		fs, err := store.NewFileStore(r.config.Store.Path)
		if err != nil {
			return err
		}
		r.logger.Info("file store ready", "tokens", fs.TokensDir())
		return fs.Close()

	default:
		st, err := r.openStore(ctx, r.config)
		if err != nil {
			return fmt.Errorf("failed to reach %s store: %w", r.config.Store.Driver, err)
		}
		return st.Close()
	}
}

func (r *Runner) rollback(ctx context.Context) error {
	if r.config.Store.Driver != "sqlite" {
		return fmt.Errorf("%w: rollback requires the sqlite store driver, not %q", shared.ErrInvalidConfig, r.config.Store.Driver)
	}

	db, err := shared.NewDatabase(ctx, r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(ctx, db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	versions, err := shared.AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	r.logger.Info("migration rolled back", "versions", versions)
	return r.writePlain("✓ Rolled back, %d migration(s) applied\n", len(versions))
}
