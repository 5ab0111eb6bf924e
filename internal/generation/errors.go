package generation

import "errors"

// Common errors returned by generative-service adapters.
var (
	// ErrInvalidResponse is returned when the model response cannot be
	// parsed or does not conform to the expected schema.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due
	// to safety filters.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might
	// resolve on retry.
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the adapter configuration is invalid.
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
