package fetch

import "github.com/cockroachdb/errors"

// Errors recorded in terminal responses.
var (
	// ErrInvalidRetries is returned when fewer than one attempt is requested.
	ErrInvalidRetries = errors.New("max retries must be >= 1")

	// ErrContextCancelled is recorded when the context ends during backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrDecode is recorded when a reply body is not valid JSON.
	ErrDecode = errors.New("decode response body")
)
