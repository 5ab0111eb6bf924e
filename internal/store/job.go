package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cardforge/cardforge-api/internal/domain"
)

// JobFilter restricts the jobs returned by List.
// Zero-valued fields are ignored.
type JobFilter struct {
	OwnerID uuid.UUID
	Status  domain.JobStatus
}

// Page describes offset pagination for List. PageNumber is 1-indexed.
type Page struct {
	PageNumber int
	PageSize   int
}

// JobStore defines the interface for job data persistence.
// The job record is the only cross-process synchronization point of a run,
// so every lifecycle transition goes through this interface.
// Version: 1.0
type JobStore interface {
	// Create saves a new job to the store.
	// Returns validation errors from the domain Job if data is invalid.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update saves changes to an existing job.
	// Returns ErrJobNotFound if the job does not exist.
	// Returns validation errors if the job data is invalid.
	Update(ctx context.Context, job *domain.Job) error

	// UpdateIfStatus saves changes to an existing job only while the stored
	// status still equals expected, so a transition committed by another
	// process is never silently overwritten. Returns ErrStaleJob when the
	// stored status has moved on, ErrJobNotFound if the job does not exist.
	UpdateIfStatus(ctx context.Context, job *domain.Job, expected domain.JobStatus) error

	// UpdateProgress persists only the progress percentage of a processing
	// job. Used for the intermediate checkpoints of a run so observers can
	// poll without waiting for a terminal state.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// List retrieves jobs matching the filter, newest first, along with the
	// total match count for pagination.
	List(ctx context.Context, filter JobFilter, page Page) ([]*domain.Job, int, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) JobStore
}

// ArtifactStore defines the interface for artifact data persistence.
// Artifacts are immutable: there is no update operation.
// Version: 1.0
type ArtifactStore interface {
	// Create saves a new artifact record to the store.
	Create(ctx context.Context, artifact *domain.Artifact) error

	// GetByID retrieves an artifact by its unique ID.
	// Returns ErrArtifactNotFound if the artifact does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)

	// CountOwnerCardsSince sums the card counts of all artifacts created by
	// the owner at or after the cutoff. Used for generation quota checks.
	CountOwnerCardsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)

	// WithTx returns a new ArtifactStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ArtifactStore
}
