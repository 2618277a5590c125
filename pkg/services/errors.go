// Package services implements the persistence and business operations over
// the PostgreSQL store. Every query is scoped to an account; cross-account
// reads have no code path.
package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoJobsAvailable is returned when the queue has no queued jobs
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrJobNotClaimable is returned when a claim races against another
	// worker or the job left the queued state
	ErrJobNotClaimable = errors.New("job not claimable")

	// ErrJobNotCancellable is returned when cancelling a terminal job
	ErrJobNotCancellable = errors.New("job not cancellable")

	// ErrJobNotRetryable is returned when retrying a job that is not failed
	ErrJobNotRetryable = errors.New("job not retryable")

	// ErrRetryExhausted is returned when a failed job has no retries left
	ErrRetryExhausted = errors.New("job retries exhausted")

	// ErrInvalidTransition is returned on an illegal status transition
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyGenerated is returned when a source article already has an
	// active generated article
	ErrAlreadyGenerated = errors.New("article already has active generated content")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
