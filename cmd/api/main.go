package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/server"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("api")

	dbManager, err := database.Open(ctx, cfg, log.Named("store"))
	if err != nil {
		log.Fatal(ctx, "failed to connect to the store", logger.Error(err))
	}
	defer dbManager.Close()

	health := server.HealthFunc(func() (bool, any) {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, _, err := dbManager.LatestDate(pingCtx, ""); err != nil {
			return false, err.Error()
		}
		return true, nil
	})
	router := server.SetupRoutes(server.NewStatsService(dbManager, log), health, log)

	srv := &http.Server{Addr: cfg.APIAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info(ctx, "server starting", logger.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(ctx, "failed to start server", logger.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "server shutdown", logger.Error(err))
	}
}
