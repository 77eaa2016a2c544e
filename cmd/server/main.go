package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopee-research/api"
	"shopee-research/config"
	"shopee-research/metrics"
	"shopee-research/services"
	"shopee-research/storage"
	"shopee-research/utils"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLoggerWithLevel(utils.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	reg := metrics.NewRegistry()
	pipeline, err := services.NewPipelineFromConfig(cfg, logger, reg)
	if err != nil {
		logger.Error("Failed to build pipeline: %v", err)
		os.Exit(1)
	}

	var sinks []storage.ResultWriter
	if cfg.PostgresExport {
		pg, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			os.Exit(1)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}
	if cfg.SQLitePath != "" {
		lite, err := storage.NewSQLiteWriter(cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to open SQLite %s: %v", cfg.SQLitePath, err)
			os.Exit(1)
		}
		defer lite.Close()
		sinks = append(sinks, lite)
	}

	handlers := api.NewHandlers(pipeline, cfg.Filter(), cfg.FilePrefix, sinks, logger)

	// A run searches every keyword serially with a pause between them.
	runBudget := 5 * time.Minute
	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowOrigins: cfg.AllowOrigins,
			Timeout:      runBudget,
			Metrics:      reg.Handler(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: runBudget + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed: %v", err)
		}
	}()

	logger.Info("=== Shopee Product Research API listening on %s ===", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
