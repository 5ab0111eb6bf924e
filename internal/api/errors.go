package api

import (
	"errors"
	"net/http"

	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/store"
)

// statusForError maps service and domain errors onto HTTP status codes with
// a sanitized client message. Unclassified errors stay opaque 500s; their
// detail goes to the logs only.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "Invalid request parameters"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "Monthly card generation quota exceeded"
	case errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, store.ErrArtifactNotFound):
		return http.StatusNotFound, "Artifact not found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "Operation not allowed in the job's current state"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
