package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bundle-deployer/internal/artifact"
	"bundle-deployer/internal/config"
	"bundle-deployer/internal/database"
	"bundle-deployer/internal/logger"
	"bundle-deployer/internal/newrelic"
	"bundle-deployer/internal/server"
)

func main() {
	appLogger := logger.Initialize()
	appLogger.Info("Starting bundle deployer")

	cfg := config.Load()
	appLogger.Info("Configuration loaded successfully")

	nrApp, err := newrelic.Initialize(cfg)
	if err != nil {
		appLogger.WithError(err).Warn("Failed to initialize New Relic, continuing without monitoring")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create artifact fetcher")
	}

	db := database.InitDB(cfg.DatabasePath)
	defer db.Close()

	srv := server.NewServer(cfg, db, nrApp, fetcher)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.WithError(err).Fatal("Server failed to start")
		}
	case <-ctx.Done():
		appLogger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.WithError(err).Error("Graceful shutdown failed")
		}
		if nrApp != nil {
			nrApp.Shutdown(5 * time.Second)
		}
	}
}

func newFetcher(ctx context.Context, cfg *config.Config) (artifact.Fetcher, error) {
	switch cfg.ArtifactStore {
	case config.StoreS3:
		return artifact.NewS3FetcherFromEnv(ctx, cfg.AWSRegion)
	case config.StoreMinio:
		return artifact.NewMinioFetcherFromConfig(artifact.MinioConfig{
			Endpoint:        cfg.MinioEndpoint,
			AccessKeyID:     cfg.MinioAccessKey,
			SecretAccessKey: cfg.MinioSecretKey,
			UseSSL:          cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown artifact store %q", cfg.ArtifactStore)
	}
}
