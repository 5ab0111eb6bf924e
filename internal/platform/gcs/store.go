// Package gcs implements the objectstore.Store interface on Google Cloud
// Storage. Source documents and generated decks live in separate buckets.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/objectstore"
)

// Store is the Google Cloud Storage implementation of objectstore.Store.
type Store struct {
	client       *storage.Client
	sourceBucket string
	deckBucket   string
	logger       *slog.Logger
}

// NewStore creates a Store over the buckets named in the storage config.
// Credentials come from the environment (application default credentials).
func NewStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if cfg.SourceBucket == "" || cfg.DeckBucket == "" {
		return nil, errors.New("source and deck bucket names are required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &Store{
		client:       client,
		sourceBucket: cfg.SourceBucket,
		deckBucket:   cfg.DeckBucket,
		logger:       logger.With(slog.String("component", "gcs_store")),
	}, nil
}

// Ensure Store implements objectstore.Store interface
var _ objectstore.Store = (*Store)(nil)

// Fetch implements objectstore.Store.Fetch
func (s *Store) Fetch(ctx context.Context, category objectstore.Category, key string) ([]byte, error) {
	bucket, err := s.bucket(category)
	if err != nil {
		return nil, err
	}

	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", objectstore.ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("opening object %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, key, err)
	}

	s.logger.Debug("object fetched",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size_bytes", len(data)))
	return data, nil
}

// Put implements objectstore.Store.Put
func (s *Store) Put(
	ctx context.Context,
	category objectstore.Category,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	bucket, err := s.bucket(category)
	if err != nil {
		return "", err
	}

	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("writing object %s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing object %s/%s: %w", bucket, key, err)
	}

	s.logger.Info("object stored",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size_bytes", len(data)))
	return fmt.Sprintf("gs://%s/%s", bucket, key), nil
}

// PresignedURL implements objectstore.Store.PresignedURL
// Signing uses the ambient service account credentials.
func (s *Store) PresignedURL(
	ctx context.Context,
	category objectstore.Category,
	key string,
	ttl time.Duration,
) (string, error) {
	bucket, err := s.bucket(category)
	if err != nil {
		return "", err
	}

	url, err := s.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("signing URL for %s/%s: %w", bucket, key, err)
	}

	return url, nil
}

// Delete implements objectstore.Store.Delete
// Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, category objectstore.Category, key string) error {
	bucket, err := s.bucket(category)
	if err != nil {
		return err
	}

	err = s.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting object %s/%s: %w", bucket, key, err)
	}

	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) bucket(category objectstore.Category) (string, error) {
	switch category {
	case objectstore.CategorySource:
		return s.sourceBucket, nil
	case objectstore.CategoryDeck:
		return s.deckBucket, nil
	default:
		return "", fmt.Errorf("unknown object category %q", category)
	}
}
