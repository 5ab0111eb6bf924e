// Package main implements the CardForge API server: it accepts conversion
// job submissions, reports their progress and serves artifact downloads.
// The heavy lifting happens in the worker binary; this process only writes
// job records and enqueues their IDs.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cardforge/cardforge-api/internal/api"
	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/lifecycle"
	"github.com/cardforge/cardforge-api/internal/platform/gcs"
	"github.com/cardforge/cardforge-api/internal/platform/logger"
	"github.com/cardforge/cardforge-api/internal/platform/postgres"
	"github.com/cardforge/cardforge-api/internal/platform/redisqueue"
	"github.com/cardforge/cardforge-api/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// run loads configuration, wires the component graph, starts the HTTP
// server and blocks until a shutdown signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	if err := postgres.Migrate(db); err != nil {
		return err
	}

	jobStore := postgres.NewPostgresJobStore(db, appLogger)
	artifactStore := postgres.NewPostgresArtifactStore(db, appLogger)
	lifecycleManager := lifecycle.NewManager(jobStore, appLogger)

	objects, err := gcs.NewStore(ctx, cfg.Storage, appLogger)
	if err != nil {
		return fmt.Errorf("creating object store: %w", err)
	}
	defer func() { _ = objects.Close() }()

	queue, err := redisqueue.New(ctx, cfg.Queue, appLogger)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer func() { _ = queue.Close() }()

	jobService := service.NewJobService(
		jobStore,
		artifactStore,
		lifecycleManager,
		queue,
		objects,
		cfg.Quota,
		cfg.Storage.URLTTL,
		appLogger,
	)

	jobHandler := api.NewJobHandler(jobService, appLogger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(jobHandler, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	appLogger.Info("server stopped")
	return nil
}
