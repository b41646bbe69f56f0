package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveModel is returned when scoring is requested but no model
	// has been promoted yet. Callers must surface this distinctly from an
	// internal failure.
	ErrNoActiveModel = errors.New("no active model available")

	// ErrNotFound is returned when a lead or model id is unknown
	ErrNotFound = errors.New("not found")

	// ErrTrainingInProgress is returned when a training run is triggered
	// while another one is still in flight
	ErrTrainingInProgress = errors.New("training already in progress")
)

// ValidationError signals malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a named field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError wraps a store read/write failure. The pipeline does not
// retry these internally; retry policy belongs to the storage collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TrainingError signals an aborted training run (NaN loss, divergence).
// The previously active model is left untouched.
type TrainingError struct {
	Reason string
	Report string
}

func (e *TrainingError) Error() string {
	if e.Report != "" {
		return fmt.Sprintf("training aborted: %s (dataset: %s)", e.Reason, e.Report)
	}
	return fmt.Sprintf("training aborted: %s", e.Reason)
}
