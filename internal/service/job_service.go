// Package service contains the application-facing operations on jobs and
// artifacts: submission with pre-flight validation and quota enforcement,
// status observation, explicit retry, cancellation, and artifact access.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/lifecycle"
	"github.com/cardforge/cardforge-api/internal/objectstore"
	"github.com/cardforge/cardforge-api/internal/store"
	"github.com/cardforge/cardforge-api/internal/task"
)

// SubmitRequest carries everything needed to create a conversion job.
// The source document must already be uploaded; SourcePath is its object
// key in the source bucket.
type SubmitRequest struct {
	OwnerID        uuid.UUID `validate:"required"`
	SourceFilename string    `validate:"required,max=512"`
	SourcePath     string    `validate:"required,max=1024"`
	Density        string    `validate:"omitempty,oneof=low medium high"`
	PageStart      *int      `validate:"omitempty,gte=1"`
	PageEnd        *int      `validate:"omitempty,gte=1"`
	Subject        string    `validate:"omitempty,max=256"`
	Chapter        string    `validate:"omitempty,max=256"`
	CustomTags     []string  `validate:"omitempty,dive,max=128"`
}

// JobService coordinates job submission and observation. Submission is
// all-or-nothing: a request that fails validation or the quota check
// creates no job record and enqueues nothing.
type JobService struct {
	jobs      store.JobStore
	artifacts store.ArtifactStore
	lifecycle *lifecycle.Manager
	queue     task.QueueWriter
	objects   objectstore.Store
	quota     config.QuotaConfig
	urlTTL    time.Duration
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewJobService wires a JobService from its collaborators.
func NewJobService(
	jobs store.JobStore,
	artifacts store.ArtifactStore,
	lc *lifecycle.Manager,
	queue task.QueueWriter,
	objects objectstore.Store,
	quota config.QuotaConfig,
	urlTTL time.Duration,
	logger *slog.Logger,
) *JobService {
	return &JobService{
		jobs:      jobs,
		artifacts: artifacts,
		lifecycle: lc,
		queue:     queue,
		objects:   objects,
		quota:     quota,
		urlTTL:    urlTTL,
		validate:  validator.New(),
		logger:    logger.With(slog.String("component", "job_service")),
	}
}

// Submit validates the request, enforces the monthly generation quota,
// creates a pending job and enqueues it for processing.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := domain.ValidatePageRange(req.PageStart, req.PageEnd); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	density := domain.Density(req.Density)
	if density == "" {
		density = domain.DensityMedium
	}

	if err := s.checkQuota(ctx, req.OwnerID); err != nil {
		return nil, err
	}

	job, err := domain.NewJob(req.OwnerID, req.SourceFilename, req.SourcePath, density)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	job.PageStart = req.PageStart
	job.PageEnd = req.PageEnd
	job.Subject = req.Subject
	job.Chapter = req.Chapter
	job.CustomTags = req.CustomTags

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job record: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The record exists but no worker will ever see it; fail it so the
		// owner can observe the outcome and retry explicitly.
		if ferr := s.lifecycle.Fail(ctx, job, "enqueue failed: "+err.Error()); ferr != nil {
			s.logger.Error("failed to record enqueue failure",
				slog.String("job_id", job.ID.String()),
				slog.String("error", ferr.Error()))
		}
		return nil, fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID.String()),
		slog.String("owner_id", job.OwnerID.String()),
		slog.String("density", string(job.Density)))
	return job, nil
}

// Get retrieves one of the owner's jobs.
// Returns store.ErrJobNotFound for missing jobs and for jobs belonging to
// a different owner, so job IDs are not probeable across owners.
func (s *JobService) Get(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

// List retrieves the owner's jobs, newest first, optionally filtered by
// status, with the total match count for pagination.
func (s *JobService) List(
	ctx context.Context,
	ownerID uuid.UUID,
	status domain.JobStatus,
	page store.Page,
) ([]*domain.Job, int, error) {
	return s.jobs.List(ctx, store.JobFilter{OwnerID: ownerID, Status: status}, page)
}

// Retry re-submits one of the owner's failed jobs for another run,
// consuming one unit of its retry budget. The quota is re-checked: a
// retry generates cards like any other run.
func (s *JobService) Retry(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.checkQuota(ctx, ownerID); err != nil {
		return nil, err
	}

	if err := s.lifecycle.Retry(ctx, job); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		if ferr := s.lifecycle.Fail(ctx, job, "enqueue failed: "+err.Error()); ferr != nil {
			s.logger.Error("failed to record enqueue failure",
				slog.String("job_id", job.ID.String()),
				slog.String("error", ferr.Error()))
		}
		return nil, fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}

	s.logger.Info("job retried",
		slog.String("job_id", job.ID.String()),
		slog.Int("retry_count", job.RetryCount))
	return job, nil
}

// Cancel stops one of the owner's pending or processing jobs. A running
// worker observes the cancellation between stages and abandons the run.
func (s *JobService) Cancel(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.lifecycle.Cancel(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("job cancelled", slog.String("job_id", job.ID.String()))
	return job, nil
}

// GetArtifact retrieves one of the owner's artifacts.
func (s *JobService) GetArtifact(ctx context.Context, ownerID, artifactID uuid.UUID) (*domain.Artifact, error) {
	artifact, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.OwnerID != ownerID {
		return nil, store.ErrArtifactNotFound
	}
	return artifact, nil
}

// ArtifactDownloadURL returns a time-limited download URL for one of the
// owner's packaged decks.
func (s *JobService) ArtifactDownloadURL(ctx context.Context, ownerID, artifactID uuid.UUID) (string, error) {
	artifact, err := s.GetArtifact(ctx, ownerID, artifactID)
	if err != nil {
		return "", err
	}

	key, err := objectKey(artifact.StoragePath)
	if err != nil {
		return "", err
	}

	url, err := s.objects.PresignedURL(ctx, objectstore.CategoryDeck, key, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("%w: signing download URL: %v", domain.ErrStorage, err)
	}
	return url, nil
}

// checkQuota rejects the operation when the owner's cards generated since
// the start of the current month already meet the monthly limit.
func (s *JobService) checkQuota(ctx context.Context, ownerID uuid.UUID) error {
	if s.quota.MonthlyCardLimit <= 0 {
		return nil
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	used, err := s.artifacts.CountOwnerCardsSince(ctx, ownerID, monthStart)
	if err != nil {
		return fmt.Errorf("checking quota for owner %s: %w", ownerID, err)
	}
	if used >= s.quota.MonthlyCardLimit {
		return fmt.Errorf("%w: %d of %d cards generated this month",
			domain.ErrQuotaExceeded, used, s.quota.MonthlyCardLimit)
	}
	return nil
}

// objectKey extracts the object key from a gs://bucket/key storage path.
func objectKey(storagePath string) (string, error) {
	const scheme = "gs://"
	if len(storagePath) <= len(scheme) || storagePath[:len(scheme)] != scheme {
		return "", fmt.Errorf("unexpected storage path %q", storagePath)
	}
	rest := storagePath[len(scheme):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			if i == len(rest)-1 {
				break
			}
			return rest[i+1:], nil
		}
	}
	return "", fmt.Errorf("unexpected storage path %q", storagePath)
}

// Sentinel re-exports commonly matched by callers of this package.
var (
	// ErrJobNotFound mirrors store.ErrJobNotFound for callers that do not
	// import the store package.
	ErrJobNotFound = store.ErrJobNotFound
)

// IsValidationError reports whether the error came from request
// validation rather than infrastructure.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrValidation)
}
