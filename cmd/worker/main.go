// Package main implements the background worker for the CardForge API:
// it consumes queued conversion jobs and turns source documents into
// packaged flashcard decks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/lifecycle"
	"github.com/cardforge/cardforge-api/internal/pipeline"
	"github.com/cardforge/cardforge-api/internal/platform/gcs"
	"github.com/cardforge/cardforge-api/internal/platform/gemini"
	"github.com/cardforge/cardforge-api/internal/platform/logger"
	"github.com/cardforge/cardforge-api/internal/platform/postgres"
	"github.com/cardforge/cardforge-api/internal/platform/redisqueue"
	"github.com/cardforge/cardforge-api/internal/publisher"
	"github.com/cardforge/cardforge-api/internal/task"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

// run loads configuration, wires the component graph, starts the worker
// pool and blocks until a shutdown signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	appLogger.Info("worker starting",
		"worker_count", cfg.Worker.Count,
		"model", cfg.LLM.ModelName)

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

	adapter, err := gemini.NewAdapter(ctx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating generation adapter: %w", err)
	}

	queue, err := redisqueue.New(ctx, cfg.Queue, appLogger)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer func() { _ = queue.Close() }()

	orchestrator := pipeline.New(adapter, pipeline.Config{
		ChunkSize:    cfg.Pipeline.ChunkSize,
		ChunkOverlap: cfg.Pipeline.ChunkOverlap,
		Concurrency:  cfg.Pipeline.Concurrency,
	}, appLogger)

	pub := publisher.New(objects, artifactStore, appLogger)

	runner := task.NewRunner(
		jobStore,
		lifecycleManager,
		objects,
		orchestrator,
		pub,
		task.RunnerConfig{
			SoftTimeLimit: cfg.Worker.SoftTimeLimit,
			HardTimeLimit: cfg.Worker.HardTimeLimit,
		},
		appLogger,
	)

	pool := task.NewWorkerPool(queue, runner, task.WorkerPoolConfig{
		WorkerCount:       cfg.Worker.Count,
		MaxTasksPerWorker: cfg.Worker.MaxTasksPerWorker,
	}, appLogger)

	pool.Start()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining workers")
	pool.Stop()
	slog.Info("worker stopped")

	return nil
}
