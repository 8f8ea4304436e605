package apperrors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobRunning is returned when a retry is requested for a job that is
	// still executing. Resetting an in-flight job would corrupt its state.
	ErrJobRunning = errors.New("job is currently running and cannot be retried")

	// ErrRetryContextMissing is returned when a job's stored details do not
	// contain enough information to re-dispatch its background task.
	ErrRetryContextMissing = errors.New("job details are missing required retry context")

	// ErrTokenBudgetExceeded is returned when a prompt's estimated token count
	// exceeds the configured gateway budget.
	ErrTokenBudgetExceeded = errors.New("prompt exceeds token budget")
)
