package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/platform/logger"
	"github.com/cardforge/cardforge-api/internal/store"
)

// PostgresArtifactStore implements the store.ArtifactStore interface
// using a PostgreSQL database as the storage backend.
// Artifact rows are immutable: this store has no update operation.
type PostgresArtifactStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresArtifactStore creates a new PostgreSQL implementation of the
// ArtifactStore interface.
func NewPostgresArtifactStore(db store.DBTX, logger *slog.Logger) *PostgresArtifactStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresArtifactStore{
		db:     db,
		logger: logger.With(slog.String("component", "artifact_store")),
	}
}

// Ensure PostgresArtifactStore implements store.ArtifactStore interface
var _ store.ArtifactStore = (*PostgresArtifactStore)(nil)

// Create implements store.ArtifactStore.Create
// Returns store.ErrInvalidEntity if the referenced job does not exist.
func (s *PostgresArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := artifact.Validate(); err != nil {
		log.Warn("artifact validation failed during create",
			slog.String("error", err.Error()),
			slog.String("artifact_id", artifact.ID.String()))
		return err
	}

	tags, err := json.Marshal(artifact.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	query := `
		INSERT INTO artifacts (id, owner_id, job_id, name, card_count,
			storage_path, size_bytes, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		artifact.ID,
		artifact.OwnerID,
		artifact.JobID,
		artifact.Name,
		artifact.CardCount,
		artifact.StoragePath,
		artifact.SizeBytes,
		tags,
		artifact.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolationCode {
			log.Warn("foreign key violation during artifact creation",
				slog.String("artifact_id", artifact.ID.String()),
				slog.String("job_id", artifact.JobID.String()))
			return fmt.Errorf("%w: job with ID %s not found",
				store.ErrInvalidEntity, artifact.JobID)
		}

		log.Error("failed to create artifact",
			slog.String("error", err.Error()),
			slog.String("artifact_id", artifact.ID.String()))
		return err
	}

	log.Info("artifact created successfully",
		slog.String("artifact_id", artifact.ID.String()),
		slog.String("job_id", artifact.JobID.String()),
		slog.Int("card_count", artifact.CardCount))
	return nil
}

// GetByID implements store.ArtifactStore.GetByID
// Returns store.ErrArtifactNotFound if the artifact does not exist.
func (s *PostgresArtifactStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, owner_id, job_id, name, card_count, storage_path,
			size_bytes, tags, created_at
		FROM artifacts
		WHERE id = $1
	`

	var artifact domain.Artifact
	var tags []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&artifact.ID,
		&artifact.OwnerID,
		&artifact.JobID,
		&artifact.Name,
		&artifact.CardCount,
		&artifact.StoragePath,
		&artifact.SizeBytes,
		&tags,
		&artifact.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("artifact not found", slog.String("artifact_id", id.String()))
			return nil, store.ErrArtifactNotFound
		}
		log.Error("failed to get artifact by ID",
			slog.String("error", err.Error()),
			slog.String("artifact_id", id.String()))
		return nil, err
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &artifact.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}

	return &artifact, nil
}

// CountOwnerCardsSince implements store.ArtifactStore.CountOwnerCardsSince
// It sums the card counts of the owner's artifacts created at or after
// the cutoff.
func (s *PostgresArtifactStore) CountOwnerCardsSince(
	ctx context.Context,
	ownerID uuid.UUID,
	since time.Time,
) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT coalesce(sum(card_count), 0)
		FROM artifacts
		WHERE owner_id = $1 AND created_at >= $2
	`

	var total int
	if err := s.db.QueryRowContext(ctx, query, ownerID, since).Scan(&total); err != nil {
		log.Error("failed to count owner cards",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return 0, err
	}

	return total, nil
}

// WithTx implements store.ArtifactStore.WithTx
func (s *PostgresArtifactStore) WithTx(tx *sql.Tx) store.ArtifactStore {
	return &PostgresArtifactStore{
		db:     tx,
		logger: s.logger,
	}
}
