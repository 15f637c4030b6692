package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nerrad567/dealer-core/internal/infrastructure/config"
	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
	"github.com/nerrad567/dealer-core/internal/store"
	"github.com/nerrad567/dealer-core/migrations"
)

// configEnv names the config file when --config is not given.
const configEnv = "DEALERCORE_CONFIG"

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dealercore",
		Short:         "Dealer desktop database tooling",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv(configEnv),
		"config file; defaults plus DEALERCORE_* environment when empty")

	cmd.AddCommand(
		newMigrateCommand(opts),
		newStatusCommand(opts),
		newStatsCommand(opts),
		newClearCommand(opts),
		newHousekeepCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

// app is what every command needs: configuration, a logger and, once
// opened, the database.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	manager *database.Manager
	db      *database.DB
}

func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	manager := database.NewManager(database.StaticPath(cfg.Database.Path), database.Config{
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	return &app{cfg: cfg, log: logging.New(cfg.Logging, version), manager: manager}, nil
}

// openApp loads the configuration and opens the database.
func openApp(opts *rootOptions) (*app, error) {
	a, err := loadApp(opts)
	if err != nil {
		return nil, err
	}
	if a.db, err = a.manager.Open(); err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.log.Debug("database opened", "path", a.db.Path())
	return a, nil
}

func (a *app) close() {
	if err := a.manager.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

func (a *app) migrate(ctx context.Context) error {
	if err := a.db.Migrate(ctx, migrations.All()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// openStore migrates and builds the store. reg may be nil.
func (a *app) openStore(ctx context.Context, reg prometheus.Registerer) (*store.Store, error) {
	if err := a.migrate(ctx); err != nil {
		return nil, err
	}

	opts := []store.Option{store.WithLogger(a.log)}
	if reg != nil {
		opts = append(opts, store.WithMetrics(store.NewMetrics(reg)))
	}
	if a.cfg.Development.AllowClearAll {
		opts = append(opts, store.AllowClearAll())
	}

	s, err := store.New(ctx, a.db, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}
