// Package store provides abstractions and implementations for data persistence.
package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrInvalidEntity is returned when an operation references another
	// entity that does not exist, such as a foreign key violation.
	ErrInvalidEntity = errors.New("invalid entity reference")

	// ErrStaleJob is returned by guarded job updates when the stored status
	// no longer matches the status the caller observed, meaning another
	// process committed a transition first.
	ErrStaleJob = errors.New("job state changed concurrently")

	// Entity-specific "not found" errors

	// ErrJobNotFound indicates that the requested job does not exist in the store.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrArtifactNotFound indicates that the requested artifact does not exist in the store.
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
