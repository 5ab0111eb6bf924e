// Package api exposes the job and artifact operations over HTTP. Handlers
// translate between wire DTOs and the service layer; ownership comes from
// the request context set by the owner middleware.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cardforge/cardforge-api/internal/api/shared"
	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/service"
	"github.com/cardforge/cardforge-api/internal/store"
)

// JobService is the slice of the service layer the handlers call.
type JobService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.Job, error)
	Get(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, ownerID uuid.UUID, status domain.JobStatus, page store.Page) ([]*domain.Job, int, error)
	Retry(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error)
	Cancel(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error)
	GetArtifact(ctx context.Context, ownerID, artifactID uuid.UUID) (*domain.Artifact, error)
	ArtifactDownloadURL(ctx context.Context, ownerID, artifactID uuid.UUID) (string, error)
}

var _ JobService = (*service.JobService)(nil)

// JobHandler handles job and artifact HTTP requests.
type JobHandler struct {
	jobs   JobService
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler calling the given service.
func NewJobHandler(jobs JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "job_handler")),
	}
}

// SubmitJob handles POST /api/jobs. Processing is asynchronous, so the
// response is 202 with the pending job.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	job, err := h.jobs.Submit(r.Context(), service.SubmitRequest{
		OwnerID:        ownerID,
		SourceFilename: req.SourceFilename,
		SourcePath:     req.SourcePath,
		Density:        req.Density,
		PageStart:      req.PageStart,
		PageEnd:        req.PageEnd,
		Subject:        req.Subject,
		Chapter:        req.Chapter,
		CustomTags:     req.CustomTags,
	})
	if err != nil {
		h.respondError(w, r, "job submission failed", err, ownerID)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), ownerID, jobID)
	if err != nil {
		h.respondError(w, r, "job lookup failed", err, ownerID)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// ListJobs handles GET /api/jobs with optional status, page and page_size
// query parameters.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}

	status := domain.JobStatus(r.URL.Query().Get("status"))
	page := store.Page{
		PageNumber: queryInt(r, "page", 1),
		PageSize:   queryInt(r, "page_size", 20),
	}

	jobs, total, err := h.jobs.List(r.Context(), ownerID, status, page)
	if err != nil {
		h.respondError(w, r, "job listing failed", err, ownerID)
		return
	}

	resp := JobListResponse{
		Jobs:       make([]JobResponse, 0, len(jobs)),
		TotalCount: total,
		Page:       page.PageNumber,
		PageSize:   page.PageSize,
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(job))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// RetryJob handles POST /api/jobs/{id}/retry.
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Retry(r.Context(), ownerID, jobID)
	if err != nil {
		h.respondError(w, r, "job retry failed", err, ownerID)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Cancel(r.Context(), ownerID, jobID)
	if err != nil {
		h.respondError(w, r, "job cancellation failed", err, ownerID)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// GetArtifact handles GET /api/artifacts/{id}.
func (h *JobHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}
	artifactID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	artifact, err := h.jobs.GetArtifact(r.Context(), ownerID, artifactID)
	if err != nil {
		h.respondError(w, r, "artifact lookup failed", err, ownerID)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, artifactToResponse(artifact))
}

// DownloadArtifact handles GET /api/artifacts/{id}/download, returning a
// time-limited URL rather than proxying the deck bytes.
func (h *JobHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromContext(w, r)
	if !ok {
		return
	}
	artifactID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	url, err := h.jobs.ArtifactDownloadURL(r.Context(), ownerID, artifactID)
	if err != nil {
		h.respondError(w, r, "artifact download failed", err, ownerID)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, DownloadResponse{URL: url})
}

// respondError logs the full error and sends the sanitized mapping.
func (h *JobHandler) respondError(w http.ResponseWriter, r *http.Request, operation string, err error, ownerID uuid.UUID) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(operation,
			"error", err,
			"owner_id", ownerID,
			"trace_id", shared.GetTraceID(r.Context()))
	} else {
		h.logger.Debug(operation,
			"error", err,
			"owner_id", ownerID,
			"trace_id", shared.GetTraceID(r.Context()))
	}
	shared.RespondWithError(w, r, status, message)
}

// ownerFromContext pulls the owner ID set by the middleware, responding 401
// if the route was somehow reached without it.
func ownerFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, ok := r.Context().Value(shared.OwnerIDContextKey).(uuid.UUID)
	if !ok || ownerID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Owner identity not found")
		return uuid.Nil, false
	}
	return ownerID, true
}

// pathID parses a UUID path parameter, responding 400 on garbage.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses a positive integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
