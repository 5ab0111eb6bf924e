// Package publisher persists the output of a successful pipeline run:
// the packaged deck goes to object storage first, then the artifact record
// is written. Deck keys embed the run's attempt key, so a redelivered run
// can never overwrite the output of an earlier one.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/objectstore"
	"github.com/cardforge/cardforge-api/internal/pipeline"
	"github.com/cardforge/cardforge-api/internal/store"
)

const deckContentType = "application/octet-stream"

// Publisher writes the deck object and its artifact record.
type Publisher struct {
	objects   objectstore.Store
	artifacts store.ArtifactStore
	logger    *slog.Logger
}

// New creates a Publisher over the given object store and artifact store.
func New(objects objectstore.Store, artifacts store.ArtifactStore, logger *slog.Logger) *Publisher {
	return &Publisher{
		objects:   objects,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Publish uploads the packaged deck and creates the artifact record,
// returning the new artifact. The upload happens before the record write:
// an artifact row never references an object that does not exist. Failures
// on either step surface as storage errors and leave no artifact record.
func (p *Publisher) Publish(ctx context.Context, job *domain.Job, result *pipeline.Result) (*domain.Artifact, error) {
	key := deckKey(job.OwnerID, job.ID, job.AttemptKey)

	storedPath, err := p.objects.Put(ctx, objectstore.CategoryDeck, key, result.DeckBytes, deckContentType)
	if err != nil {
		return nil, fmt.Errorf("uploading deck for job %s: %w: %s", job.ID, domain.ErrStorage, err)
	}

	artifact, err := domain.NewArtifact(
		job.OwnerID,
		job.ID,
		result.DeckName+".apkg",
		storedPath,
		len(result.Cards),
		int64(len(result.DeckBytes)),
		result.Tags,
	)
	if err != nil {
		return nil, fmt.Errorf("building artifact record for job %s: %w", job.ID, err)
	}

	if err := p.artifacts.Create(ctx, artifact); err != nil {
		return nil, fmt.Errorf("saving artifact record for job %s: %w: %s", job.ID, domain.ErrStorage, err)
	}

	p.logger.InfoContext(ctx, "artifact published",
		"job_id", job.ID,
		"artifact_id", artifact.ID,
		"storage_path", artifact.StoragePath,
		"card_count", artifact.CardCount,
		"size_bytes", artifact.SizeBytes)

	return artifact, nil
}

// deckKey derives the collision-free object key for one run's deck.
func deckKey(ownerID, jobID, attemptKey uuid.UUID) string {
	return fmt.Sprintf("decks/%s/%s/%s.apkg", ownerID, jobID, attemptKey)
}
