package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// receiveBackoff is the pause after a failed Receive so a broken queue
// connection does not spin the worker.
const receiveBackoff = time.Second

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines run.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// MaxTasksPerWorker retires a worker after it has processed this many
	// deliveries; a fresh one replaces it. Long generative runs accumulate
	// memory, and a bounded worker lifetime keeps that from growing
	// without limit. Zero disables retirement.
	MaxTasksPerWorker int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:       2,
		MaxTasksPerWorker: 50,
	}
}

// WorkerPool manages a pool of worker goroutines consuming deliveries
// from the queue. It handles worker retirement and graceful shutdown.
type WorkerPool struct {
	queue  QueueReader
	runner *Runner
	config WorkerPoolConfig

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// nextWorkerID labels workers in logs across retirements.
	nextWorkerID atomic.Int64

	logger *slog.Logger
}

// NewWorkerPool creates a worker pool over the given queue and runner.
func NewWorkerPool(queue QueueReader, runner *Runner, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	config.WorkerCount = workerCount

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:  queue,
		runner: runner,
		config: config,
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	for i := 0; i < p.config.WorkerCount; i++ {
		p.spawn()
	}
	p.logger.Info("worker pool started",
		"worker_count", p.config.WorkerCount,
		"max_tasks_per_worker", p.config.MaxTasksPerWorker)
}

// Stop signals all workers to finish their current delivery and waits for
// them to exit. In-flight runs are cancelled through the pool context; the
// queue redelivers anything left unacked.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) spawn() {
	id := p.nextWorkerID.Add(1)
	p.wg.Add(1)
	go p.worker(id)
}

// worker consumes deliveries until shutdown or retirement. A retiring
// worker spawns its own replacement before exiting.
func (p *WorkerPool) worker(id int64) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	processed := 0
	for {
		if p.ctx.Err() != nil {
			logger.Debug("worker stopping")
			return
		}

		delivery, err := p.queue.Receive(p.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || p.ctx.Err() != nil {
				logger.Debug("worker stopping")
				return
			}
			logger.Error("receive failed", "error", err)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}

		if err := p.runner.ProcessDelivery(p.ctx, delivery); err != nil {
			logger.Error("delivery processing failed, awaiting redelivery",
				"job_id", delivery.JobID,
				"error", err)
		}

		processed++
		if p.config.MaxTasksPerWorker > 0 && processed >= p.config.MaxTasksPerWorker {
			logger.Info("worker retiring", "processed", processed)
			if p.ctx.Err() == nil {
				p.spawn()
			}
			return
		}
	}
}
