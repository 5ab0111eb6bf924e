package api

import (
	"time"

	"github.com/cardforge/cardforge-api/internal/domain"
)

// SubmitJobRequest is the request body for submitting a conversion job.
// The source document must already be uploaded; SourcePath is its object
// key in the source bucket.
type SubmitJobRequest struct {
	SourceFilename string   `json:"source_filename"`
	SourcePath     string   `json:"source_path"`
	Density        string   `json:"density,omitempty"`
	PageStart      *int     `json:"page_start,omitempty"`
	PageEnd        *int     `json:"page_end,omitempty"`
	Subject        string   `json:"subject,omitempty"`
	Chapter        string   `json:"chapter,omitempty"`
	CustomTags     []string `json:"custom_tags,omitempty"`
}

// JobResponse is the externally visible view of a job.
type JobResponse struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress_percent"`
	SourceFilename   string     `json:"source_filename"`
	Density          string     `json:"density"`
	Subject          string     `json:"subject,omitempty"`
	Chapter          string     `json:"chapter,omitempty"`
	CustomTags       []string   `json:"custom_tags,omitempty"`
	ResultArtifactID *string    `json:"result_artifact_id,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	RetryCount       int        `json:"retry_count"`
	MaxRetries       int        `json:"max_retries"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is a page of jobs with the total match count.
type JobListResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// ArtifactResponse is the externally visible view of a packaged deck.
type ArtifactResponse struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	CardCount int       `json:"card_count"`
	SizeBytes int64     `json:"size_bytes"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DownloadResponse carries a time-limited URL for fetching a deck.
type DownloadResponse struct {
	URL string `json:"url"`
}

func jobToResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:             job.ID.String(),
		Status:         string(job.Status),
		Progress:       job.Progress,
		SourceFilename: job.SourceFilename,
		Density:        string(job.Density),
		Subject:        job.Subject,
		Chapter:        job.Chapter,
		CustomTags:     job.CustomTags,
		ErrorMessage:   job.ErrorMessage,
		RetryCount:     job.RetryCount,
		MaxRetries:     job.MaxRetries,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if job.ResultArtifactID != nil {
		id := job.ResultArtifactID.String()
		resp.ResultArtifactID = &id
	}
	return resp
}

func artifactToResponse(artifact *domain.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:        artifact.ID.String(),
		JobID:     artifact.JobID.String(),
		Name:      artifact.Name,
		CardCount: artifact.CardCount,
		SizeBytes: artifact.SizeBytes,
		Tags:      artifact.Tags,
		CreatedAt: artifact.CreatedAt,
	}
}
