package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/lifecycle"
	"github.com/cardforge/cardforge-api/internal/objectstore"
	"github.com/cardforge/cardforge-api/internal/pipeline"
	"github.com/cardforge/cardforge-api/internal/publisher"
	"github.com/cardforge/cardforge-api/internal/store"
)

// Progress checkpoint reported after the source document is fetched.
const progressSourceFetched = 10

// RunnerConfig holds the per-run execution limits.
type RunnerConfig struct {
	// SoftTimeLimit cancels the pipeline when exceeded; the run is then
	// recorded as failed with time left for cleanup.
	SoftTimeLimit time.Duration

	// HardTimeLimit bounds the whole run including cleanup.
	HardTimeLimit time.Duration
}

// DefaultRunnerConfig returns limits matching a long document run.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		SoftTimeLimit: 115 * time.Minute,
		HardTimeLimit: 2 * time.Hour,
	}
}

// Runner executes one delivered job end to end: lifecycle transitions,
// source fetch, pipeline run, artifact publication, terminal transition,
// acknowledgement. It never retries by itself; retries are an explicit
// external action on the failed job.
type Runner struct {
	jobs      store.JobStore
	lifecycle *lifecycle.Manager
	objects   objectstore.Store
	pipeline  *pipeline.Orchestrator
	publisher *publisher.Publisher
	config    RunnerConfig
	logger    *slog.Logger
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(
	jobs store.JobStore,
	lc *lifecycle.Manager,
	objects objectstore.Store,
	orchestrator *pipeline.Orchestrator,
	pub *publisher.Publisher,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if config.SoftTimeLimit <= 0 {
		config.SoftTimeLimit = DefaultRunnerConfig().SoftTimeLimit
	}
	if config.HardTimeLimit <= config.SoftTimeLimit {
		config.HardTimeLimit = config.SoftTimeLimit + 5*time.Minute
	}

	return &Runner{
		jobs:      jobs,
		lifecycle: lc,
		objects:   objects,
		pipeline:  orchestrator,
		publisher: pub,
		config:    config,
		logger:    logger,
	}
}

// ProcessDelivery handles one queue delivery. A nil return means the
// delivery was resolved (acked); an error means the outcome could not be
// recorded and the queue should redeliver.
func (r *Runner) ProcessDelivery(ctx context.Context, delivery *Delivery) error {
	logger := r.logger.With("job_id", delivery.JobID, "attempt", delivery.Attempt)

	// Terminal transitions and the ack must outlive an expired run context.
	persistCtx := context.WithoutCancel(ctx)

	job, err := r.jobs.GetByID(ctx, delivery.JobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			// The record is gone; nothing to run and nothing to redeliver.
			logger.Warn("dropping delivery for unknown job")
			return r.ack(persistCtx, delivery, logger)
		}
		return fmt.Errorf("loading job %s: %w", delivery.JobID, err)
	}

	// A redelivered message for a job that already finished (or was
	// cancelled before a worker picked it up) is stale.
	if job.IsTerminal() {
		logger.Info("dropping stale delivery", "status", job.Status)
		return r.ack(persistCtx, delivery, logger)
	}

	// Pending means a fresh submission or an explicit retry; processing
	// means a previous worker died mid-run and the queue redelivered.
	switch job.Status {
	case domain.JobStatusPending:
		err = r.lifecycle.Start(ctx, job)
	case domain.JobStatusProcessing:
		err = r.lifecycle.Restart(ctx, job)
	default:
		err = fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, job.ID, job.Status)
	}
	if err != nil {
		if errors.Is(err, store.ErrStaleJob) {
			// Someone else moved the job between our read and the start
			// commit, typically a cancel. Their outcome stands.
			logger.Info("job transitioned concurrently before start, dropping delivery")
			return r.ack(persistCtx, delivery, logger)
		}
		return fmt.Errorf("starting run for job %s: %w", job.ID, err)
	}

	logger.Info("run started", "attempt_key", job.AttemptKey)

	hardCtx, cancelHard := context.WithTimeout(ctx, r.config.HardTimeLimit)
	defer cancelHard()

	source, err := r.objects.Fetch(hardCtx, objectstore.CategorySource, job.SourcePath)
	if err != nil {
		message := fmt.Sprintf("fetching source document: %s: %s", domain.ErrStorage, err)
		return r.resolveFailure(persistCtx, delivery, job, message, logger)
	}
	if err := r.lifecycle.Progress(hardCtx, job, progressSourceFetched); err != nil {
		logger.Warn("progress update failed", "error", err)
	}

	// The soft limit cancels the pipeline; the hard limit caps what is
	// left, which is only recording the outcome.
	runCtx, cancelRun := context.WithTimeout(hardCtx, r.config.SoftTimeLimit)
	defer cancelRun()

	result, err := r.pipeline.Run(runCtx, job, source,
		func(percent int) {
			if perr := r.lifecycle.Progress(hardCtx, job, percent); perr != nil {
				logger.Warn("progress update failed", "percent", percent, "error", perr)
			}
		},
		r.cancelProbe(job),
	)
	if err != nil {
		if errors.Is(err, pipeline.ErrCancelled) {
			// The job record already says cancelled; just resolve the
			// delivery and walk away.
			logger.Info("run abandoned after external cancellation")
			return r.ack(persistCtx, delivery, logger)
		}
		message := err.Error()
		// The soft context inherits the hard deadline, so check the hard
		// limit first to attribute the kill correctly.
		if errors.Is(err, context.DeadlineExceeded) {
			switch {
			case hardCtx.Err() != nil:
				message = fmt.Sprintf("run exceeded the %s hard time limit", r.config.HardTimeLimit)
			case runCtx.Err() != nil:
				message = fmt.Sprintf("run exceeded the %s time limit", r.config.SoftTimeLimit)
			}
		}
		return r.resolveFailure(persistCtx, delivery, job, message, logger)
	}

	artifact, err := r.publisher.Publish(hardCtx, job, result)
	if err != nil {
		return r.resolveFailure(persistCtx, delivery, job, err.Error(), logger)
	}

	if err := r.lifecycle.Succeed(persistCtx, job, artifact.ID); err != nil {
		if errors.Is(err, store.ErrStaleJob) {
			// An external transition beat the success commit; its outcome
			// stands and the published deck stays unreferenced.
			r.logLostRace(persistCtx, job, logger)
			return r.ack(persistCtx, delivery, logger)
		}
		// The outcome is not recorded; leave the delivery unacked so the
		// queue redelivers and the run is repeated.
		return fmt.Errorf("recording success for job %s: %w", job.ID, err)
	}

	logger.Info("run completed",
		"artifact_id", artifact.ID,
		"card_count", artifact.CardCount,
		"num_pages", result.NumPages,
		"num_chunks", result.NumChunks)

	return r.ack(persistCtx, delivery, logger)
}

// cancelProbe returns the between-stage check that notices an external
// cancellation of the job record.
func (r *Runner) cancelProbe(job *domain.Job) pipeline.CancelCheck {
	return func(ctx context.Context) bool {
		fresh, err := r.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return false
		}
		return fresh.Status == domain.JobStatusCancelled
	}
}

// resolveFailure records the failed outcome and acks the delivery. No
// partial artifact exists at this point: publication is all or nothing.
func (r *Runner) resolveFailure(
	ctx context.Context,
	delivery *Delivery,
	job *domain.Job,
	message string,
	logger *slog.Logger,
) error {
	if err := r.lifecycle.Fail(ctx, job, message); err != nil {
		if errors.Is(err, store.ErrStaleJob) {
			// An external transition, typically a cancel, was committed
			// while this run was failing. Its outcome stands.
			r.logLostRace(ctx, job, logger)
			return r.ack(ctx, delivery, logger)
		}
		return fmt.Errorf("recording failure for job %s: %w", job.ID, err)
	}
	logger.Error("run failed", "reason", message, "retry_count", job.RetryCount)
	return r.ack(ctx, delivery, logger)
}

// logLostRace re-reads the job after a lost commit race to record which
// transition won.
func (r *Runner) logLostRace(ctx context.Context, job *domain.Job, logger *slog.Logger) {
	fresh, err := r.jobs.GetByID(ctx, job.ID)
	if err != nil {
		logger.Warn("job transitioned concurrently, dropping delivery", "error", err)
		return
	}
	logger.Info("job transitioned concurrently, dropping delivery", "status", fresh.Status)
}

// ack confirms the delivery. An ack failure is logged but not propagated:
// the outcome is already durable, and the stale-delivery guard drops the
// eventual redelivery.
func (r *Runner) ack(ctx context.Context, delivery *Delivery, logger *slog.Logger) error {
	if err := delivery.Ack(ctx); err != nil {
		logger.Warn("delivery ack failed, expecting a stale redelivery", "error", err)
	}
	return nil
}
