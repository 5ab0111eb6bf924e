package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/platform/logger"
	"github.com/cardforge/cardforge-api/internal/store"
)

// PostgreSQL error codes
const (
	pgUniqueViolationCode     = "23505"
	pgForeignKeyViolationCode = "23503"
)

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore
// interface. It accepts a database connection or transaction that should be
// initialized and managed by the caller.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

const jobColumns = `id, owner_id, status, progress, source_filename, source_path,
		page_start, page_end, density, subject, chapter, custom_tags,
		result_artifact_id, error_message, retry_count, max_retries,
		attempt_key, created_at, updated_at, completed_at`

// Create implements store.JobStore.Create
// It saves a new job to the database, handling domain validation.
// Returns store.ErrDuplicate if a job with the same ID already exists.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	customTags, err := json.Marshal(job.CustomTags)
	if err != nil {
		return fmt.Errorf("marshaling custom tags: %w", err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.OwnerID,
		job.Status,
		job.Progress,
		job.SourceFilename,
		job.SourcePath,
		job.PageStart,
		job.PageEnd,
		job.Density,
		job.Subject,
		job.Chapter,
		customTags,
		job.ResultArtifactID,
		job.ErrorMessage,
		job.RetryCount,
		job.MaxRetries,
		job.AttemptKey,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Warn("duplicate job ID during creation",
				slog.String("job_id", job.ID.String()))
			return fmt.Errorf("%w: job with ID %s already exists",
				store.ErrDuplicate, job.ID)
		}

		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	log.Info("job created successfully",
		slog.String("job_id", job.ID.String()),
		slog.String("owner_id", job.OwnerID.String()),
		slog.String("status", string(job.Status)))
	return nil
}

// GetByID implements store.JobStore.GetByID
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("job not found", slog.String("job_id", id.String()))
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to get job by ID",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, err
	}

	return job, nil
}

// Update implements store.JobStore.Update
// It saves all mutable fields of an existing job.
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) Update(ctx context.Context, job *domain.Job) error {
	return s.update(ctx, job, nil)
}

// UpdateIfStatus implements store.JobStore.UpdateIfStatus
// The status predicate is evaluated by the database, so a transition
// committed by another process between read and write loses no data:
// the caller gets store.ErrStaleJob instead.
func (s *PostgresJobStore) UpdateIfStatus(
	ctx context.Context,
	job *domain.Job,
	expected domain.JobStatus,
) error {
	return s.update(ctx, job, &expected)
}

func (s *PostgresJobStore) update(ctx context.Context, job *domain.Job, expected *domain.JobStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during update",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	customTags, err := json.Marshal(job.CustomTags)
	if err != nil {
		return fmt.Errorf("marshaling custom tags: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $2,
			progress = $3,
			page_start = $4,
			page_end = $5,
			density = $6,
			subject = $7,
			chapter = $8,
			custom_tags = $9,
			result_artifact_id = $10,
			error_message = $11,
			retry_count = $12,
			max_retries = $13,
			attempt_key = $14,
			updated_at = $15,
			completed_at = $16
		WHERE id = $1
	`
	args := []interface{}{
		job.ID,
		job.Status,
		job.Progress,
		job.PageStart,
		job.PageEnd,
		job.Density,
		job.Subject,
		job.Chapter,
		customTags,
		job.ResultArtifactID,
		job.ErrorMessage,
		job.RetryCount,
		job.MaxRetries,
		job.AttemptKey,
		job.UpdatedAt,
		job.CompletedAt,
	}
	if expected != nil {
		args = append(args, *expected)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		if expected == nil {
			log.Debug("job not found during update", slog.String("job_id", job.ID.String()))
			return store.ErrJobNotFound
		}
		return s.classifyStaleUpdate(ctx, job.ID, *expected, log)
	}

	log.Debug("job updated successfully",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)))
	return nil
}

// classifyStaleUpdate distinguishes the two reasons a guarded update can
// match zero rows: a missing job and a lost transition race.
func (s *PostgresJobStore) classifyStaleUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected domain.JobStatus,
	log *slog.Logger,
) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("job not found during update", slog.String("job_id", id.String()))
		return store.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("checking job status after lost update: %w", err)
	}

	log.Warn("job update lost a transition race",
		slog.String("job_id", id.String()),
		slog.String("expected_status", string(expected)),
		slog.String("current_status", current))
	return fmt.Errorf("%w: job %s is %s, not %s", store.ErrStaleJob, id, current, expected)
}

// UpdateProgress implements store.JobStore.UpdateProgress
// It persists only the progress percentage of a job.
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if progress < 0 || progress > 100 {
		return domain.ErrInvalidProgress
	}

	// Checkpoints only ever apply to a live run; a job that was cancelled
	// or failed elsewhere keeps its record as that transition left it.
	query := `
		UPDATE jobs
		SET progress = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	result, err := s.db.ExecContext(ctx, query, id, progress, domain.JobStatusProcessing)
	if err != nil {
		log.Error("failed to update job progress",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking progress update result: %w", err)
	}
	if rows == 0 {
		return s.classifyStaleUpdate(ctx, id, domain.JobStatusProcessing, log)
	}

	return nil
}

// List implements store.JobStore.List
// It retrieves jobs matching the filter, newest first, with the total
// match count for pagination.
func (s *PostgresJobStore) List(
	ctx context.Context,
	filter store.JobFilter,
	page store.Page,
) ([]*domain.Job, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where := ` WHERE 1=1`
	args := []interface{}{}
	if filter.OwnerID != uuid.Nil {
		args = append(args, filter.OwnerID)
		where += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	countQuery := `SELECT count(*) FROM jobs` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count jobs", slog.String("error", err.Error()))
		return nil, 0, err
	}

	pageSize := page.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	pageNumber := page.PageNumber
	if pageNumber < 1 {
		pageNumber = 1
	}

	args = append(args, pageSize, (pageNumber-1)*pageSize)
	query := `SELECT ` + jobColumns + ` FROM jobs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list jobs", slog.String("error", err.Error()))
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// WithTx implements store.JobStore.WithTx
// It returns a new JobStore instance that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one jobs row into a domain Job.
func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var status, density string
	var customTags []byte

	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&job.Progress,
		&job.SourceFilename,
		&job.SourcePath,
		&job.PageStart,
		&job.PageEnd,
		&density,
		&job.Subject,
		&job.Chapter,
		&customTags,
		&job.ResultArtifactID,
		&job.ErrorMessage,
		&job.RetryCount,
		&job.MaxRetries,
		&job.AttemptKey,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.Density = domain.Density(density)
	if len(customTags) > 0 {
		if err := json.Unmarshal(customTags, &job.CustomTags); err != nil {
			return nil, fmt.Errorf("unmarshaling custom tags: %w", err)
		}
	}

	return &job, nil
}
