package domain

import "errors"

// Common errors
var (
	ErrNotFound   = errors.New("record not found")
	ErrForbidden  = errors.New("access forbidden: you don't own this resource")
	ErrValidation = errors.New("invalid input")

	// ErrConflict is returned when an optimistic save loses a concurrent-write
	// race. Callers may reload and retry.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrTransient marks gateway/notifier timeouts and 5xx responses.
	// Batch jobs count these per item and keep going.
	ErrTransient = errors.New("transient integration failure")

	// ErrStoreUnavailable marks store-connectivity failures. A batch run
	// aborts on this and surfaces it through the process exit code.
	ErrStoreUnavailable = errors.New("subscription store unavailable")
)

// Lifecycle transition errors
var (
	ErrInvalidTransition    = errors.New("invalid lifecycle transition")
	ErrNotInTrial           = errors.New("subscription is not in an active trial")
	ErrInvalidPlanType      = errors.New("invalid plan type")
	ErrNonPositiveExtension = errors.New("extension days must be positive")
	ErrAlreadyCanceled      = errors.New("subscription is already canceled")
)

// IsRetryable reports whether err is worth retrying on a later run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
