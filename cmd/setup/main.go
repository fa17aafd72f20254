package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("setup")

	dbManager, err := database.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	if err := dbManager.CreateTables(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := dbManager.SeedCatalog(ctx); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	log.Info(ctx, "schema ready", logger.String("driver", cfg.StoreDriver))
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	cmd := &cobra.Command{
		Use:          "setup",
		Short:        "Create the schema and seed the region catalog",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
