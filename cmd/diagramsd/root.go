package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/narvanalabs/diagrams/internal/api"
	"github.com/narvanalabs/diagrams/internal/store"
	"github.com/narvanalabs/diagrams/internal/store/memory"
	"github.com/narvanalabs/diagrams/internal/store/postgres"
	"github.com/narvanalabs/diagrams/pkg/config"
	"github.com/narvanalabs/diagrams/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	store      string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "diagramsd",
		Short:        "Diagram collaboration server",
		Version:      api.Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file (default $CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "storage backend: postgres or memory (overrides STORE)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newTokenCmd(opts))
	return root
}

// load reads the configuration, applies flag overrides and builds the logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if o.store != "" {
		cfg.Store = o.store
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("loading configuration: %w", err)
		}
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(os.Stderr, level, cfg.Log.Format), nil
}

// openStore connects the configured backend. The returned PostgresStore is
// nil for the memory backend.
func openStore(cfg *config.Config, log *slog.Logger) (store.Store, *postgres.PostgresStore, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on exit")
		return memory.New(log), nil, nil
	}

	pg, err := postgres.NewPostgresStore(&postgres.Config{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pg, pg, nil
}

func migrate(ctx context.Context, pg *postgres.PostgresStore, log *slog.Logger) error {
	if pg == nil {
		log.Info("memory store needs no migrations")
		return nil
	}
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
