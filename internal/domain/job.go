package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a conversion job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// DefaultMaxRetries is the number of operator-triggered retries a job
// is allowed before retry requests are rejected.
const DefaultMaxRetries = 3

// Common validation errors for Job
var (
	ErrEmptyJobID          = errors.New("job ID cannot be empty")
	ErrEmptyJobOwnerID     = errors.New("job owner ID cannot be empty")
	ErrEmptySourceFilename = errors.New("job source filename cannot be empty")
	ErrEmptySourcePath     = errors.New("job source path cannot be empty")
	ErrInvalidJobStatus    = errors.New("invalid job status")
	ErrInvalidProgress     = errors.New("job progress must be between 0 and 100")
	ErrInvalidPageRange    = errors.New("invalid page range")
	ErrInvalidRetryCount   = errors.New("retry count cannot exceed max retries")
)

// Job is one persisted document-to-deck conversion request. It tracks the
// source descriptor, the processing parameters chosen at submission, and
// the externally observable lifecycle state.
type Job struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress_percent"`

	// Source descriptor: the uploaded document this job converts.
	SourceFilename string `json:"source_filename"`
	SourcePath     string `json:"source_path"`
	PageStart      *int   `json:"page_start,omitempty"`
	PageEnd        *int   `json:"page_end,omitempty"`

	// Processing parameters.
	Density    Density  `json:"density"`
	Subject    string   `json:"subject,omitempty"`
	Chapter    string   `json:"chapter,omitempty"`
	CustomTags []string `json:"custom_tags,omitempty"`

	// Result and failure bookkeeping.
	ResultArtifactID *uuid.UUID `json:"result_artifact_id,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RetryCount       int        `json:"retry_count"`
	MaxRetries       int        `json:"max_retries"`

	// AttemptKey identifies one execution attempt of this job. It is
	// re-issued every time the job enters processing, so artifacts written
	// by a redelivered attempt never collide with an earlier attempt's.
	AttemptKey uuid.UUID `json:"attempt_key"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a new pending Job for the given owner and source document.
// Returns an error if validation fails.
func NewJob(
	ownerID uuid.UUID,
	sourceFilename, sourcePath string,
	density Density,
) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Status:         JobStatusPending,
		Progress:       0,
		SourceFilename: sourceFilename,
		SourcePath:     sourcePath,
		Density:        density,
		RetryCount:     0,
		MaxRetries:     DefaultMaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.OwnerID == uuid.Nil {
		return ErrEmptyJobOwnerID
	}

	if j.SourceFilename == "" {
		return ErrEmptySourceFilename
	}

	if j.SourcePath == "" {
		return ErrEmptySourcePath
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if j.Progress < 0 || j.Progress > 100 {
		return ErrInvalidProgress
	}

	if err := ValidatePageRange(j.PageStart, j.PageEnd); err != nil {
		return err
	}

	if !j.Density.Valid() {
		return ErrInvalidDensity
	}

	if j.MaxRetries < 1 {
		return ErrInvalidRetryCount
	}

	if j.RetryCount < 0 || j.RetryCount > j.MaxRetries {
		return ErrInvalidRetryCount
	}

	return nil
}

// IsTerminal reports whether the job has reached a final state.
// Terminal jobs carry a CompletedAt timestamp; non-terminal jobs never do.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanRetry reports whether an explicit retry request is allowed:
// the job must be failed with retry budget remaining.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// DeckName derives the display name for the generated deck:
// chapter if set, else subject, else the source filename stem.
func (j *Job) DeckName() string {
	if j.Chapter != "" {
		return j.Chapter
	}
	if j.Subject != "" {
		return j.Subject
	}
	return filenameStem(j.SourceFilename)
}

// ValidatePageRange checks an optional 1-indexed inclusive page range.
// Both bounds are optional; when both are present start must not exceed end.
func ValidatePageRange(start, end *int) error {
	if start != nil && *start < 1 {
		return ErrInvalidPageRange
	}
	if end != nil && *end < 1 {
		return ErrInvalidPageRange
	}
	if start != nil && end != nil && *start > *end {
		return ErrInvalidPageRange
	}
	return nil
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// filenameStem returns the filename without its final extension.
func filenameStem(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			if i == 0 {
				return name
			}
			return name[:i]
		}
		if name[i] == '/' {
			break
		}
	}
	return name
}
