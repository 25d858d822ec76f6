// Package common provides shared utilities used across the pipeline:
// logging setup, error taxonomy, and the retry executor.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Cycle errors.
	ErrNoActiveClients = errors.New("no active clients eligible for cycle")
	ErrCycleTerminal   = errors.New("cycle already terminal")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError marks a failure that must not be retried: a malformed
// message, a missing destination configuration, an illegal status
// transition. The retry executor returns these immediately.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a fail-fast error.
func NewValidationError(message string, err error) error {
	return &ValidationError{Message: message, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
