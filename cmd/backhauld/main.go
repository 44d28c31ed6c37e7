package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/db"
	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/logging"
	"github.com/edvin/backhaul/internal/metrics"
	"github.com/edvin/backhaul/internal/store"
)

const migrationsDir = "migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(cfg.DatabaseURL, migrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, pool)

	if err := os.MkdirAll(cfg.BackupDir, 0o750); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.BackupDir).Msg("failed to create backup directory")
	}

	stores := store.New(pool, func(entity, id string) {
		logger.Debug().Str("entity", entity).Str("id", id).Msg("record changed")
	})
	eng := engine.New(logger, stores, prometheus.DefaultRegisterer, engine.Options{
		BackupDir:       cfg.BackupDir,
		WatchdogTimeout: cfg.WatchdogTimeout,
		ExpiryBatchSize: cfg.ExpiryBatchSize,
		InDepthDelete:   cfg.InDepthDelete,
	})

	if cfg.MetricsListenAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsListenAddr, prometheus.DefaultGatherer)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info().Msg("shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logger.Fatal().Err(err).Msg("engine failed")
		}
	}
}
