package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/ingestion"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/internal/server"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/gpazo-prog/scraper-enargas/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type app struct {
	cfg     *config.Config
	handler *ingestion.IngestionService
	metrics *metrics.Manager
	log     logger.Logger
}

func setup(ctx context.Context, dir, schedule string) (*app, func(), error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir != "" {
		cfg.InputDir = dir
	}
	if schedule != "" {
		cfg.Schedule = schedule
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	log := logger.Named("ingestion")

	dbManager, err := database.Open(ctx, cfg, log.Named("store"))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open store: %w", err)
	}
	if err := dbManager.CreateTables(ctx); err != nil {
		dbManager.Close()
		return nil, nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := dbManager.SeedCatalog(ctx); err != nil {
		dbManager.Close()
		return nil, nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	m := metrics.NewManager()
	fileProcessor := ingestion.NewFileProcessor(dbManager, log.Named("files"), m)
	asyncWorker := ingestion.NewAsyncWorker(dbManager, ingestion.AsyncWorkerConfig{
		SkipProcessedFiles: cfg.SkipProcessedFiles,
	}, log.Named("worker"), m)

	handler := ingestion.NewIngestionService(
		dbManager,
		ingestion.Setup{},
		asyncWorker,
		fileProcessor,
		*cfg,
		log,
		m,
	)

	cleanupFunc := func() {
		dbManager.Close()
		_ = logger.Sync()
	}

	return &app{cfg: cfg, handler: handler, metrics: m, log: log}, cleanupFunc, nil
}

// runOnce performs a pass and reports it to the metrics registry.
func (a *app) runOnce(ctx context.Context) (*models.RunSummary, error) {
	start := time.Now()
	summary, err := a.handler.Execute(ctx, a.cfg.InputDir)
	a.metrics.ObserveRun(time.Since(start), err == nil, time.Now())
	return summary, err
}

func execute(ctx context.Context, a *app) error {
	a.log.Info(ctx, "starting extraction process", logger.String("dir", a.cfg.InputDir))
	_, err := a.runOnce(ctx)

	if a.cfg.PushgatewayURL != "" {
		if perr := a.metrics.Push(ctx, a.cfg.PushgatewayURL, "enargas_ingestion"); perr != nil {
			a.log.Warn(ctx, "failed to push metrics", logger.Error(perr))
		}
	}
	return err
}

func serve(ctx context.Context, a *app) error {
	loc, err := time.LoadLocation(a.cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid time zone %q: %w", a.cfg.TimeZone, err)
	}

	scheduler, err := ingestion.NewScheduler(a.cfg.Schedule, loc, a.runOnce, a.log.Named("scheduler"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           server.SetupOpsRoutes(scheduler, a.metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler.Start(ctx)
	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "ops server listening", logger.String("addr", a.cfg.ListenAddr), logger.String("schedule", a.cfg.Schedule))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info(context.Background(), "shutting down")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn(shutdownCtx, "ops server shutdown", logger.Error(serr))
	}
	return err
}

func cleanup(cleanupFunc func()) {
	cleanupFunc()
}

func newRootCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:           "data_ingestion [dir]",
		Short:         "Ingest downloaded ENARGAS exports into the statistics store",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var dir string
			if len(args) == 1 {
				dir = args[0]
			}

			startTime := time.Now()
			a, cleanupFunc, err := setup(ctx, dir, schedule)
			if err != nil {
				return err
			}
			defer cleanup(cleanupFunc)

			if a.cfg.Schedule != "" {
				return serve(ctx, a)
			}
			if err := execute(ctx, a); err != nil {
				return fmt.Errorf("error during extraction: %w", err)
			}
			a.log.Info(ctx, "extraction process finished", logger.String("execution_time", time.Since(startTime).String()))
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression; when set, runs as a daemon instead of a single pass")
	return cmd
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
