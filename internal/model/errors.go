package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown job, model, or dataset identifiers.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a request is rejected before any work is scheduled.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a job status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrorKind classifies a job failure.
type ErrorKind string

// Error kinds recorded on failed jobs.
const (
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindExecution  ErrorKind = "execution"
)

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf maps an error chain to the kind recorded on a failed job.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	default:
		return ErrorKindExecution
	}
}

// NewJobError builds the failure description stored on a job.
func NewJobError(err error) *JobError {
	return &JobError{Kind: KindOf(err), Message: err.Error()}
}
