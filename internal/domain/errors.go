// Package domain defines the core business entities and errors.
package domain

import "errors"

// Error taxonomy for the conversion pipeline. Callers classify failures
// with errors.Is against these sentinels; specific messages are attached
// by wrapping with fmt.Errorf("%w: ...").
var (
	// ErrValidation is returned when submission parameters are rejected
	// before a job record is created.
	ErrValidation = errors.New("validation failed")

	// ErrSource is returned when the source document is unreadable,
	// corrupt, or empty after page-range filtering.
	ErrSource = errors.New("unreadable source document")

	// ErrUpstreamService is returned when a generative-service call fails,
	// times out, or produces structured output that does not conform to
	// the expected schema.
	ErrUpstreamService = errors.New("generative service failure")

	// ErrStorage is returned when fetching the source document or
	// persisting the packaged deck fails.
	ErrStorage = errors.New("object storage failure")

	// ErrQuotaExceeded is returned when the owner is over the allowed
	// generation volume. Checked prior to job creation.
	ErrQuotaExceeded = errors.New("generation quota exceeded")

	// ErrInvalidTransition is returned when a job state-machine move is
	// not permitted from the job's current status.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
