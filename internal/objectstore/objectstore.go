// Package objectstore defines the contract for the object storage
// collaborator holding source documents and packaged decks. The pipeline
// core depends only on this interface; the concrete Google Cloud Storage
// implementation lives in internal/platform/gcs.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// Category selects which bucket an object lives in. Source documents and
// generated decks have different lifecycles and access patterns.
type Category string

// Supported object categories.
const (
	CategorySource Category = "source"
	CategoryDeck   Category = "deck"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is the object storage call contract.
// Version: 1.0
type Store interface {
	// Fetch downloads the full contents of an object.
	// Returns ErrObjectNotFound if the object does not exist.
	Fetch(ctx context.Context, category Category, key string) ([]byte, error)

	// Put uploads data under the given key, returning the stored object
	// path. Existing objects with the same key are never overwritten by
	// the core: callers derive collision-free keys.
	Put(ctx context.Context, category Category, key string, data []byte, contentType string) (string, error)

	// PresignedURL returns a time-limited download URL for the object.
	PresignedURL(ctx context.Context, category Category, key string, ttl time.Duration) (string, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, category Category, key string) error
}
