package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge-api/internal/api/shared"
	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/service"
	"github.com/cardforge/cardforge-api/internal/store"
)

// mockJobService implements JobService with overridable func fields.
type mockJobService struct {
	SubmitFn              func(ctx context.Context, req service.SubmitRequest) (*domain.Job, error)
	GetFn                 func(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error)
	ListFn                func(ctx context.Context, ownerID uuid.UUID, status domain.JobStatus, page store.Page) ([]*domain.Job, int, error)
	RetryFn               func(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error)
	CancelFn              func(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error)
	GetArtifactFn         func(ctx context.Context, ownerID, artifactID uuid.UUID) (*domain.Artifact, error)
	ArtifactDownloadURLFn func(ctx context.Context, ownerID, artifactID uuid.UUID) (string, error)
}

func (m *mockJobService) Submit(ctx context.Context, req service.SubmitRequest) (*domain.Job, error) {
	return m.SubmitFn(ctx, req)
}

func (m *mockJobService) Get(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
	return m.GetFn(ctx, ownerID, jobID)
}

func (m *mockJobService) List(
	ctx context.Context,
	ownerID uuid.UUID,
	status domain.JobStatus,
	page store.Page,
) ([]*domain.Job, int, error) {
	return m.ListFn(ctx, ownerID, status, page)
}

func (m *mockJobService) Retry(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
	return m.RetryFn(ctx, ownerID, jobID)
}

func (m *mockJobService) Cancel(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
	return m.CancelFn(ctx, ownerID, jobID)
}

func (m *mockJobService) GetArtifact(ctx context.Context, ownerID, artifactID uuid.UUID) (*domain.Artifact, error) {
	return m.GetArtifactFn(ctx, ownerID, artifactID)
}

func (m *mockJobService) ArtifactDownloadURL(ctx context.Context, ownerID, artifactID uuid.UUID) (string, error) {
	return m.ArtifactDownloadURLFn(ctx, ownerID, artifactID)
}

func newTestHandler(svc JobService) *JobHandler {
	return NewJobHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newRequest builds a request carrying the owner ID the middleware would
// have set, plus optional chi URL params.
func newRequest(t *testing.T, method, target string, ownerID uuid.UUID, body any, params map[string]string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	ctx := context.WithValue(req.Context(), shared.OwnerIDContextKey, ownerID)

	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}

	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func sampleJob(t *testing.T, ownerID uuid.UUID) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(ownerID, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	return job
}

func TestJobHandler_SubmitJob(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	var captured service.SubmitRequest
	svc := &mockJobService{
		SubmitFn: func(ctx context.Context, req service.SubmitRequest) (*domain.Job, error) {
			captured = req
			return sampleJob(t, req.OwnerID), nil
		},
	}

	body := SubmitJobRequest{
		SourceFilename: "notes.txt",
		SourcePath:     "uploads/notes.txt",
		Density:        "high",
		Subject:        "Biology",
	}
	req := newRequest(t, http.MethodPost, "/api/jobs", ownerID, body, nil)
	rec := httptest.NewRecorder()

	newTestHandler(svc).SubmitJob(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ownerID, captured.OwnerID, "owner comes from the context, never the body")
	assert.Equal(t, "high", captured.Density)

	resp := decodeBody[JobResponse](t, rec)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "notes.txt", resp.SourceFilename)
}

func TestJobHandler_SubmitJob_MalformedBody(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{
		SubmitFn: func(ctx context.Context, req service.SubmitRequest) (*domain.Job, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte("{not json")))
	req = req.WithContext(context.WithValue(req.Context(), shared.OwnerIDContextKey, uuid.New()))
	rec := httptest.NewRecorder()

	newTestHandler(svc).SubmitJob(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobHandler_SubmitJob_MissingOwner(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{}
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	rec := httptest.NewRecorder()

	newTestHandler(svc).SubmitJob(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobHandler_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", fmt.Errorf("%w: bad page range", domain.ErrValidation), http.StatusBadRequest},
		{"quota", fmt.Errorf("%w: 1000 of 1000", domain.ErrQuotaExceeded), http.StatusTooManyRequests},
		{"unknown", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockJobService{
				SubmitFn: func(ctx context.Context, req service.SubmitRequest) (*domain.Job, error) {
					return nil, tc.err
				},
			}
			req := newRequest(t, http.MethodPost, "/api/jobs", uuid.New(),
				SubmitJobRequest{SourceFilename: "a", SourcePath: "b"}, nil)
			rec := httptest.NewRecorder()

			newTestHandler(svc).SubmitJob(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)

			resp := decodeBody[shared.ErrorResponse](t, rec)
			assert.NotContains(t, resp.Error, "connection reset", "raw errors never leak")
		})
	}
}

func TestJobHandler_GetJob(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	job := sampleJob(t, ownerID)
	svc := &mockJobService{
		GetFn: func(ctx context.Context, gotOwner, gotJob uuid.UUID) (*domain.Job, error) {
			assert.Equal(t, ownerID, gotOwner)
			assert.Equal(t, job.ID, gotJob)
			return job, nil
		},
	}

	req := newRequest(t, http.MethodGet, "/api/jobs/"+job.ID.String(), ownerID, nil,
		map[string]string{"id": job.ID.String()})
	rec := httptest.NewRecorder()

	newTestHandler(svc).GetJob(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[JobResponse](t, rec)
	assert.Equal(t, job.ID.String(), resp.ID)
}

func TestJobHandler_GetJob_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{
		GetFn: func(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
			return nil, store.ErrJobNotFound
		},
	}
	id := uuid.New().String()
	req := newRequest(t, http.MethodGet, "/api/jobs/"+id, uuid.New(), nil,
		map[string]string{"id": id})
	rec := httptest.NewRecorder()

	newTestHandler(svc).GetJob(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobHandler_GetJob_BadID(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{}
	req := newRequest(t, http.MethodGet, "/api/jobs/not-a-uuid", uuid.New(), nil,
		map[string]string{"id": "not-a-uuid"})
	rec := httptest.NewRecorder()

	newTestHandler(svc).GetJob(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobHandler_ListJobs(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	svc := &mockJobService{
		ListFn: func(ctx context.Context, gotOwner uuid.UUID, status domain.JobStatus, page store.Page) ([]*domain.Job, int, error) {
			assert.Equal(t, ownerID, gotOwner)
			assert.Equal(t, domain.JobStatusFailed, status)
			assert.Equal(t, store.Page{PageNumber: 2, PageSize: 5}, page)
			return []*domain.Job{sampleJob(t, ownerID)}, 11, nil
		},
	}

	req := newRequest(t, http.MethodGet, "/api/jobs?status=failed&page=2&page_size=5", ownerID, nil, nil)
	rec := httptest.NewRecorder()

	newTestHandler(svc).ListJobs(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[JobListResponse](t, rec)
	assert.Len(t, resp.Jobs, 1)
	assert.Equal(t, 11, resp.TotalCount)
	assert.Equal(t, 2, resp.Page)
}

func TestJobHandler_ListJobs_DefaultsPagination(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{
		ListFn: func(ctx context.Context, ownerID uuid.UUID, status domain.JobStatus, page store.Page) ([]*domain.Job, int, error) {
			assert.Equal(t, store.Page{PageNumber: 1, PageSize: 20}, page)
			return nil, 0, nil
		},
	}

	req := newRequest(t, http.MethodGet, "/api/jobs?page=-3&page_size=junk", uuid.New(), nil, nil)
	rec := httptest.NewRecorder()

	newTestHandler(svc).ListJobs(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobHandler_RetryJob_Conflict(t *testing.T) {
	t.Parallel()

	svc := &mockJobService{
		RetryFn: func(ctx context.Context, ownerID, jobID uuid.UUID) (*domain.Job, error) {
			return nil, fmt.Errorf("%w: retry limit reached", domain.ErrInvalidTransition)
		},
	}
	id := uuid.New().String()
	req := newRequest(t, http.MethodPost, "/api/jobs/"+id+"/retry", uuid.New(), nil,
		map[string]string{"id": id})
	rec := httptest.NewRecorder()

	newTestHandler(svc).RetryJob(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobHandler_CancelJob(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	job := sampleJob(t, ownerID)
	job.Status = domain.JobStatusCancelled
	svc := &mockJobService{
		CancelFn: func(ctx context.Context, gotOwner, gotJob uuid.UUID) (*domain.Job, error) {
			return job, nil
		},
	}
	req := newRequest(t, http.MethodPost, "/api/jobs/"+job.ID.String()+"/cancel", ownerID, nil,
		map[string]string{"id": job.ID.String()})
	rec := httptest.NewRecorder()

	newTestHandler(svc).CancelJob(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[JobResponse](t, rec)
	assert.Equal(t, "cancelled", resp.Status)
}

func TestJobHandler_DownloadArtifact(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	artifactID := uuid.New()
	svc := &mockJobService{
		ArtifactDownloadURLFn: func(ctx context.Context, gotOwner, gotArtifact uuid.UUID) (string, error) {
			assert.Equal(t, ownerID, gotOwner)
			assert.Equal(t, artifactID, gotArtifact)
			return "https://signed.example.com/deck.apkg", nil
		},
	}
	req := newRequest(t, http.MethodGet, "/api/artifacts/"+artifactID.String()+"/download", ownerID, nil,
		map[string]string{"id": artifactID.String()})
	rec := httptest.NewRecorder()

	newTestHandler(svc).DownloadArtifact(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[DownloadResponse](t, rec)
	assert.Equal(t, "https://signed.example.com/deck.apkg", resp.URL)
}
