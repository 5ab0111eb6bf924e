package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/lifecycle"
	"github.com/cardforge/cardforge-api/internal/objectstore"
	"github.com/cardforge/cardforge-api/internal/store"
)

// mockJobStore implements store.JobStore with overridable behavior.
type mockJobStore struct {
	CreateFn         func(ctx context.Context, job *domain.Job) error
	GetByIDFn        func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateFn         func(ctx context.Context, job *domain.Job) error
	UpdateIfStatusFn func(ctx context.Context, job *domain.Job, expected domain.JobStatus) error
	UpdateProgressFn func(ctx context.Context, id uuid.UUID, progress int) error
	ListFn           func(ctx context.Context, filter store.JobFilter, page store.Page) ([]*domain.Job, int, error)

	created []*domain.Job
	updated []*domain.Job
}

func (m *mockJobStore) Create(ctx context.Context, job *domain.Job) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, job)
	}
	m.created = append(m.created, job)
	return nil
}

func (m *mockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, store.ErrJobNotFound
}

func (m *mockJobStore) Update(ctx context.Context, job *domain.Job) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, job)
	}
	m.updated = append(m.updated, job)
	return nil
}

func (m *mockJobStore) UpdateIfStatus(ctx context.Context, job *domain.Job, expected domain.JobStatus) error {
	if m.UpdateIfStatusFn != nil {
		return m.UpdateIfStatusFn(ctx, job, expected)
	}
	m.updated = append(m.updated, job)
	return nil
}

func (m *mockJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if m.UpdateProgressFn != nil {
		return m.UpdateProgressFn(ctx, id, progress)
	}
	return nil
}

func (m *mockJobStore) List(
	ctx context.Context,
	filter store.JobFilter,
	page store.Page,
) ([]*domain.Job, int, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter, page)
	}
	return nil, 0, nil
}

func (m *mockJobStore) WithTx(tx *sql.Tx) store.JobStore { return m }

// mockArtifactStore implements store.ArtifactStore with overridable behavior.
type mockArtifactStore struct {
	GetByIDFn              func(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)
	CountOwnerCardsSinceFn func(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)
}

func (m *mockArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) error {
	return nil
}

func (m *mockArtifactStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, store.ErrArtifactNotFound
}

func (m *mockArtifactStore) CountOwnerCardsSince(
	ctx context.Context,
	ownerID uuid.UUID,
	since time.Time,
) (int, error) {
	if m.CountOwnerCardsSinceFn != nil {
		return m.CountOwnerCardsSinceFn(ctx, ownerID, since)
	}
	return 0, nil
}

func (m *mockArtifactStore) WithTx(tx *sql.Tx) store.ArtifactStore { return m }

// mockQueue implements task.QueueWriter.
type mockQueue struct {
	EnqueueFn func(ctx context.Context, jobID uuid.UUID) error
	enqueued  []uuid.UUID
}

func (m *mockQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	if m.EnqueueFn != nil {
		return m.EnqueueFn(ctx, jobID)
	}
	m.enqueued = append(m.enqueued, jobID)
	return nil
}

func (m *mockQueue) Close() error { return nil }

// mockObjects implements objectstore.Store; only PresignedURL matters here.
type mockObjects struct {
	PresignedURLFn func(ctx context.Context, category objectstore.Category, key string, ttl time.Duration) (string, error)
}

func (m *mockObjects) Fetch(ctx context.Context, category objectstore.Category, key string) ([]byte, error) {
	return nil, objectstore.ErrObjectNotFound
}

func (m *mockObjects) Put(
	ctx context.Context,
	category objectstore.Category,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	return "", nil
}

func (m *mockObjects) PresignedURL(
	ctx context.Context,
	category objectstore.Category,
	key string,
	ttl time.Duration,
) (string, error) {
	if m.PresignedURLFn != nil {
		return m.PresignedURLFn(ctx, category, key, ttl)
	}
	return "https://signed.example.com/" + key, nil
}

func (m *mockObjects) Delete(ctx context.Context, category objectstore.Category, key string) error {
	return nil
}

type serviceFixture struct {
	service   *JobService
	jobs      *mockJobStore
	artifacts *mockArtifactStore
	queue     *mockQueue
	objects   *mockObjects
}

func newFixture(t *testing.T, limit int) *serviceFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := &mockJobStore{}
	artifacts := &mockArtifactStore{}
	queue := &mockQueue{}
	objects := &mockObjects{}

	svc := NewJobService(
		jobs,
		artifacts,
		lifecycle.NewManager(jobs, logger),
		queue,
		objects,
		config.QuotaConfig{MonthlyCardLimit: limit},
		15*time.Minute,
		logger,
	)
	return &serviceFixture{service: svc, jobs: jobs, artifacts: artifacts, queue: queue, objects: objects}
}

func validRequest(ownerID uuid.UUID) SubmitRequest {
	return SubmitRequest{
		OwnerID:        ownerID,
		SourceFilename: "bio-notes.txt",
		SourcePath:     "uploads/bio-notes.txt",
		Density:        "high",
		Subject:        "Biology",
		CustomTags:     []string{"Bio 101"},
	}
}

func TestJobService_Submit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	ownerID := uuid.New()

	job, err := f.service.Submit(context.Background(), validRequest(ownerID))
	require.NoError(t, err)

	assert.Equal(t, ownerID, job.OwnerID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, domain.DensityHigh, job.Density)
	assert.Equal(t, "Biology", job.Subject)

	require.Len(t, f.jobs.created, 1)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, job.ID, f.queue.enqueued[0])
}

func TestJobService_Submit_DefaultsDensity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	req := validRequest(uuid.New())
	req.Density = ""

	job, err := f.service.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.DensityMedium, job.Density)
}

func TestJobService_Submit_ValidationFailures(t *testing.T) {
	t.Parallel()

	five, ten := 5, 10

	tests := []struct {
		name   string
		mutate func(req *SubmitRequest)
	}{
		{"missing owner", func(req *SubmitRequest) { req.OwnerID = uuid.Nil }},
		{"missing filename", func(req *SubmitRequest) { req.SourceFilename = "" }},
		{"missing source path", func(req *SubmitRequest) { req.SourcePath = "" }},
		{"unknown density", func(req *SubmitRequest) { req.Density = "extreme" }},
		{"zero page start", func(req *SubmitRequest) {
			zero := 0
			req.PageStart = &zero
		}},
		{"inverted page range", func(req *SubmitRequest) {
			req.PageStart = &ten
			req.PageEnd = &five
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 1000)
			req := validRequest(uuid.New())
			tc.mutate(&req)

			_, err := f.service.Submit(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.True(t, IsValidationError(err))

			// All-or-nothing: nothing persisted, nothing enqueued.
			assert.Empty(t, f.jobs.created)
			assert.Empty(t, f.queue.enqueued)
		})
	}
}

func TestJobService_Submit_QuotaExceeded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 500)
	f.artifacts.CountOwnerCardsSinceFn = func(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
		// The cutoff is the start of the current month.
		now := time.Now().UTC()
		assert.Equal(t, time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), since)
		return 500, nil
	}

	_, err := f.service.Submit(context.Background(), validRequest(uuid.New()))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Empty(t, f.jobs.created)
	assert.Empty(t, f.queue.enqueued)
}

func TestJobService_Submit_QuotaDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.artifacts.CountOwnerCardsSinceFn = func(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
		t.Fatal("quota must not be consulted when disabled")
		return 0, nil
	}

	_, err := f.service.Submit(context.Background(), validRequest(uuid.New()))
	require.NoError(t, err)
}

func TestJobService_Submit_EnqueueFailureFailsJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	f.queue.EnqueueFn = func(ctx context.Context, jobID uuid.UUID) error {
		return errors.New("broker unreachable")
	}

	_, err := f.service.Submit(context.Background(), validRequest(uuid.New()))
	require.Error(t, err)

	// The record exists but was transitioned to failed so the owner can
	// observe the outcome.
	require.Len(t, f.jobs.created, 1)
	require.NotEmpty(t, f.jobs.updated)
	failed := f.jobs.updated[len(f.jobs.updated)-1]
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "enqueue failed")
}

func TestJobService_Get_HidesForeignJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	job, err := domain.NewJob(owner, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	f.jobs.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		return job, nil
	}

	got, err := f.service.Get(context.Background(), owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	// Another owner sees not-found, never a permission error.
	_, err = f.service.Get(context.Background(), uuid.New(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestJobService_Retry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	job, err := domain.NewJob(owner, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = "previous run failed"
	f.jobs.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		return job, nil
	}

	retried, err := f.service.Retry(context.Background(), owner, job.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusPending, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Empty(t, retried.ErrorMessage)
	require.Len(t, f.queue.enqueued, 1)
}

func TestJobService_Retry_BudgetExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	job, err := domain.NewJob(owner, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	job.Status = domain.JobStatusFailed
	job.RetryCount = job.MaxRetries
	f.jobs.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		return job, nil
	}

	_, err = f.service.Retry(context.Background(), owner, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, f.queue.enqueued)
}

func TestJobService_Retry_QuotaRechecked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 100)
	owner := uuid.New()
	job, err := domain.NewJob(owner, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	job.Status = domain.JobStatusFailed
	f.jobs.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		return job, nil
	}
	f.artifacts.CountOwnerCardsSinceFn = func(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
		return 100, nil
	}

	_, err = f.service.Retry(context.Background(), owner, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, domain.JobStatusFailed, job.Status, "quota rejection leaves the job untouched")
	assert.Empty(t, f.queue.enqueued)
}

func TestJobService_Cancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	job, err := domain.NewJob(owner, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	job.Status = domain.JobStatusProcessing
	f.jobs.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		return job, nil
	}

	cancelled, err := f.service.Cancel(context.Background(), owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)
}

func TestJobService_Cancel_RejectsCompleted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	job, err := domain.NewJob(owner, "notes.txt", "uploads/notes.txt", domain.DensityMedium)
	require.NoError(t, err)
	job.Status = domain.JobStatusCompleted
	f.jobs.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		return job, nil
	}

	_, err = f.service.Cancel(context.Background(), owner, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestJobService_GetArtifact_HidesForeignArtifacts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	artifact, err := domain.NewArtifact(owner, uuid.New(), "deck.apkg",
		"gs://decks/decks/a/b/c.apkg", 12, 2048, nil)
	require.NoError(t, err)
	f.artifacts.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
		return artifact, nil
	}

	got, err := f.service.GetArtifact(context.Background(), owner, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact.ID, got.ID)

	_, err = f.service.GetArtifact(context.Background(), uuid.New(), artifact.ID)
	assert.ErrorIs(t, err, store.ErrArtifactNotFound)
}

func TestJobService_ArtifactDownloadURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	artifact, err := domain.NewArtifact(owner, uuid.New(), "deck.apkg",
		"gs://deck-bucket/decks/owner/job/attempt.apkg", 12, 2048, nil)
	require.NoError(t, err)
	f.artifacts.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
		return artifact, nil
	}

	var signedKey string
	f.objects.PresignedURLFn = func(ctx context.Context, category objectstore.Category, key string, ttl time.Duration) (string, error) {
		assert.Equal(t, objectstore.CategoryDeck, category)
		assert.Equal(t, 15*time.Minute, ttl)
		signedKey = key
		return "https://signed.example.com/" + key, nil
	}

	url, err := f.service.ArtifactDownloadURL(context.Background(), owner, artifact.ID)
	require.NoError(t, err)

	// The bucket is stripped from the stored gs:// path; only the object
	// key is signed.
	assert.Equal(t, "decks/owner/job/attempt.apkg", signedKey)
	assert.Contains(t, url, signedKey)
}

func TestJobService_ArtifactDownloadURL_SigningFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1000)
	owner := uuid.New()
	artifact, err := domain.NewArtifact(owner, uuid.New(), "deck.apkg",
		"gs://deck-bucket/decks/x.apkg", 12, 2048, nil)
	require.NoError(t, err)
	f.artifacts.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
		return artifact, nil
	}
	f.objects.PresignedURLFn = func(ctx context.Context, category objectstore.Category, key string, ttl time.Duration) (string, error) {
		return "", errors.New("signer unavailable")
	}

	_, err = f.service.ArtifactDownloadURL(context.Background(), owner, artifact.ID)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"nested key", "gs://bucket/decks/a/b.apkg", "decks/a/b.apkg", false},
		{"flat key", "gs://bucket/deck.apkg", "deck.apkg", false},
		{"no key", "gs://bucket/", "", true},
		{"no bucket", "gs://", "", true},
		{"wrong scheme", "s3://bucket/key", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := objectKey(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
