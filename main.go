package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pubmed-loader/config"
	"pubmed-loader/providers/pubmed"
	"pubmed-loader/services"
	"pubmed-loader/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup Services
	fetcher := pubmed.NewFetcher(cfg, logging)
	store := services.NewJobStore()
	loader := services.NewLoader(store, fetcher, logging)
	logging.Info("PubMed fetcher ready",
		zap.Float64("requests_per_second", cfg.RequestsPerSecond()),
		zap.Int("batch_size", cfg.PubMedBatchSize))

	var history historyLister
	if cfg.HistoryEnabled() {
		h, err := storage.OpenHistory(cfg)
		if err != nil {
			logging.Fatal("Failed to connect to history database", zap.Error(err))
		}
		loader.History = h
		history = h
		logging.Info("Search history enabled.")
	}

	if cfg.ArchiveEnabled() {
		archive, err := storage.NewArtifactArchive(ctx, cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		loader.Archive = archive
		logging.Info("Artifact mirror enabled", zap.String("bucket", cfg.ArtifactS3Bucket))
	}

	// Setup Cron
	retention, err := services.StartRetention(store, cfg.JobSweepSchedule, cfg.JobRetention, logging)
	if err != nil {
		logging.Fatal("Invalid JOB_SWEEP_SCHEDULE", zap.Error(err))
	}

	router := newRouter(cfg, loader, history, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if err := loader.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Running jobs were aborted", zap.Error(err))
	}
	<-retention.Stop().Done()
	store.Clear()
	logging.Info("Shutdown complete.")
}
