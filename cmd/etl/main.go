package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/dwd-weather-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/dwd-weather-etl/internal/adapter/kafka"
	"github.com/couchcryptid/dwd-weather-etl/internal/config"
	"github.com/couchcryptid/dwd-weather-etl/internal/observability"
	"github.com/couchcryptid/dwd-weather-etl/internal/pipeline"
	"github.com/couchcryptid/dwd-weather-etl/internal/registry"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if cfg.StationListPath != "" {
		if err := loadStations(cfg.StationListPath); err != nil {
			logger.Error("failed to load station list", "error", err, "path", cfg.StationListPath)
			os.Exit(1)
		}
		logger.Info("station list loaded", "path", cfg.StationListPath)
	} else {
		logger.Info("no station list configured, id translation disabled")
	}

	reg := registry.New()
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reg, writer, logger, metrics, cfg.SpoolDir, cfg.PollInterval, cfg.MergePolicy)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, reg.Formats(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start parsing pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func loadStations(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return stations.Load(f)
}
