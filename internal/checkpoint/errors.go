package checkpoint

import "errors"

// Sentinel errors for progress store operations.
var (
	// ErrNotFound indicates no progress file exists yet.
	ErrNotFound = errors.New("progress file not found")

	// ErrInvalid indicates a progress file or checkpoint that fails validation.
	ErrInvalid = errors.New("invalid checkpoint")

	// ErrSaveExhausted indicates every save attempt failed.
	ErrSaveExhausted = errors.New("progress save retries exhausted")

	// ErrStageRegression indicates a save that would move the run to an earlier stage.
	ErrStageRegression = errors.New("checkpoint stage regression")
)
