package sealbox

import (
	"errors"
	"fmt"
	"time"
)

// The relay error taxonomy. Every operation failure wraps exactly one of
// these sentinels; the transport adapter maps them to wire responses.
var (
	// ErrValidation indicates malformed, oversized, or forbidden input.
	// Validation always fails before any store is touched.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown, expired, or already-consumed id.
	// The cases are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates a sliding-window budget was exceeded.
	// Recoverable after the advertised retry delay.
	ErrRateLimited = errors.New("rate limited")

	// ErrLocked indicates a brute-force lockout is active. Recoverable
	// only after the exponential penalty elapses.
	ErrLocked = errors.New("locked")

	// ErrInternal indicates an unexpected failure. Details are logged
	// server-side; callers get a generic message.
	ErrInternal = errors.New("internal error")
)

// RateLimitedError carries the retry delay for a rate-limit violation.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Unwrap ties the error into the taxonomy sentinel.
func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// LockedError carries the lockout state for a brute-force lockout.
type LockedError struct {
	RetryAfter time.Duration
	Attempts   int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("locked after %d failed attempts, retry after %s", e.Attempts, e.RetryAfter)
}

// Unwrap ties the error into the taxonomy sentinel.
func (e *LockedError) Unwrap() error { return ErrLocked }

// validationErr wraps a component validation failure into the taxonomy.
func validationErr(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
