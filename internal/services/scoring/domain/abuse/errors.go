package abuse

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

// ErrRateLimitExceeded matches every RateLimitError via errors.Is.
var ErrRateLimitExceeded = apperrors.New(apperrors.CodeRateLimitExceeded, "rate limit exceeded")

// RateLimitError names the scope and window that rejected a request.
type RateLimitError struct {
	Scope  Scope
	Window string
	Limit  int64
	Count  int64
	// RetryAfter is the time left until the rejecting window resets.
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (%s): %d > %d", e.Scope, e.Window, e.Count, e.Limit)
}

// Unwrap exposes the domain error so callers can map it to a status.
func (e *RateLimitError) Unwrap() error {
	return e.AppError()
}

// AppError returns the domain error with templating metadata.
func (e *RateLimitError) AppError() *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeRateLimitExceeded, e.Error(), map[string]string{
		"Scope":  string(e.Scope),
		"Window": e.Window,
		"Limit":  strconv.FormatInt(e.Limit, 10),
	})
}
