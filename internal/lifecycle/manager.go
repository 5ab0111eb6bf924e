// Package lifecycle enforces the job state machine. Every legal transition
// is a method on Manager; each one mutates the job and persists it through
// the JobStore in the same call, so no lifecycle state is in-memory only.
//
// Allowed transitions:
//
//	pending    -> processing            (Start)
//	processing -> processing            (Restart, after queue redelivery)
//	processing -> completed             (Succeed)
//	pending | processing -> failed      (Fail; pending covers pre-flight failures)
//	pending | processing -> cancelled   (Cancel, external trigger only)
//	failed     -> pending               (Retry, bounded by the retry budget)
//
// Everything else is rejected with domain.ErrInvalidTransition.
//
// Transitions commit with a predicate on the status they were checked
// against, so a transition committed concurrently by another process is
// surfaced as store.ErrStaleJob instead of being overwritten.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/store"
)

// Manager drives job status transitions and retry bookkeeping.
type Manager struct {
	jobs   store.JobStore
	logger *slog.Logger
}

// NewManager creates a lifecycle Manager persisting through the given store.
func NewManager(jobs store.JobStore, logger *slog.Logger) *Manager {
	return &Manager{
		jobs:   jobs,
		logger: logger,
	}
}

// Start transitions a pending job to processing, resets progress and issues
// a fresh attempt key for this execution.
func (m *Manager) Start(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusPending {
		return transitionError(job, domain.JobStatusProcessing)
	}

	job.Status = domain.JobStatusProcessing
	job.Progress = 0
	job.AttemptKey = uuid.New()
	job.UpdatedAt = time.Now().UTC()

	return m.persist(ctx, job, domain.JobStatusPending, "start")
}

// Restart re-arms a processing job whose run was interrupted and has been
// redelivered by the queue. The run starts over from nothing: progress
// resets and a fresh attempt key is issued so the rerun's artifact key
// cannot collide with anything a dead worker may have written.
func (m *Manager) Restart(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusProcessing {
		return transitionError(job, domain.JobStatusProcessing)
	}

	job.Progress = 0
	job.AttemptKey = uuid.New()
	job.UpdatedAt = time.Now().UTC()

	return m.persist(ctx, job, domain.JobStatusProcessing, "restart")
}

// Succeed transitions a processing job to completed, recording the artifact
// reference produced by the run.
func (m *Manager) Succeed(ctx context.Context, job *domain.Job, artifactID uuid.UUID) error {
	if job.Status != domain.JobStatusProcessing {
		return transitionError(job, domain.JobStatusCompleted)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.ResultArtifactID = &artifactID
	job.ErrorMessage = ""
	job.CompletedAt = &now
	job.UpdatedAt = now

	return m.persist(ctx, job, domain.JobStatusProcessing, "succeed")
}

// Fail transitions a pending or processing job to failed with the given
// message. Pending is allowed so pre-flight failures (for example a missing
// source object) still land in an observable terminal state.
// The retry count is untouched: only an explicit Retry changes it.
func (m *Manager) Fail(ctx context.Context, job *domain.Job, message string) error {
	if job.Status != domain.JobStatusProcessing && job.Status != domain.JobStatusPending {
		return transitionError(job, domain.JobStatusFailed)
	}
	from := job.Status

	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	job.UpdatedAt = now

	return m.persist(ctx, job, from, "fail")
}

// Retry resets a failed job to pending for another run. It increments the
// retry count and clears the failure fields. Rejected once the retry budget
// is exhausted.
func (m *Manager) Retry(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusFailed {
		return transitionError(job, domain.JobStatusPending)
	}
	if job.RetryCount >= job.MaxRetries {
		return fmt.Errorf("%w: retry limit %d reached for job %s",
			domain.ErrInvalidTransition, job.MaxRetries, job.ID)
	}

	job.Status = domain.JobStatusPending
	job.Progress = 0
	job.RetryCount++
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.UpdatedAt = time.Now().UTC()

	return m.persist(ctx, job, domain.JobStatusFailed, "retry")
}

// Cancel transitions a pending or processing job to cancelled. A running
// worker observes the change cooperatively between stages and abandons
// the run.
func (m *Manager) Cancel(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusProcessing {
		return transitionError(job, domain.JobStatusCancelled)
	}
	from := job.Status

	now := time.Now().UTC()
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = &now
	job.UpdatedAt = now

	return m.persist(ctx, job, from, "cancel")
}

// Progress records a progress checkpoint for a processing job. Progress is
// monotonic within a run: regressions are rejected so external observers
// never see the percentage move backwards.
func (m *Manager) Progress(ctx context.Context, job *domain.Job, percent int) error {
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: progress update on %s job %s",
			domain.ErrInvalidTransition, job.Status, job.ID)
	}
	if percent < 0 || percent > 100 {
		return domain.ErrInvalidProgress
	}
	if percent < job.Progress {
		return fmt.Errorf("%w: progress cannot decrease from %d to %d",
			domain.ErrInvalidProgress, job.Progress, percent)
	}
	if percent == job.Progress {
		return nil
	}

	job.Progress = percent
	job.UpdatedAt = time.Now().UTC()

	if err := m.jobs.UpdateProgress(ctx, job.ID, percent); err != nil {
		return fmt.Errorf("failed to persist job progress: %w", err)
	}

	m.logger.Debug("job progress updated",
		"job_id", job.ID,
		"progress", percent)
	return nil
}

// persist commits the mutated job, guarded by the status the transition
// was checked against, and logs it. A lost race surfaces store.ErrStaleJob.
func (m *Manager) persist(ctx context.Context, job *domain.Job, from domain.JobStatus, transition string) error {
	if err := m.jobs.UpdateIfStatus(ctx, job, from); err != nil {
		return fmt.Errorf("failed to persist job %s transition: %w", transition, err)
	}

	m.logger.Info("job status transition",
		"job_id", job.ID,
		"transition", transition,
		"status", job.Status,
		"retry_count", job.RetryCount)
	return nil
}

func transitionError(job *domain.Job, target domain.JobStatus) error {
	return fmt.Errorf("%w: %s -> %s for job %s",
		domain.ErrInvalidTransition, job.Status, target, job.ID)
}
