// Package errors defines the pipeline error taxonomy. Per-record errors
// (schema, validation, merge conflict) are recovered locally and surfaced as
// counts in the run summary; only store unavailability aborts a run.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSchema marks a raw record that cannot be mapped to the canonical
	// event shape. The record is dropped and counted, never forwarded.
	ErrSchema = errors.New("unmappable source record")

	// ErrValidation marks an event that failed the quality gate. The event
	// is persisted with its failing quality flag, not excluded.
	ErrValidation = errors.New("event failed validation")

	// ErrMergeConflict marks an identity collision between candidates that
	// disagree on the natural key. Both candidates are excluded and counted.
	ErrMergeConflict = errors.New("event identity conflict")

	// ErrStoreUnavailable marks an unreachable persistence layer. It is
	// fatal to the whole run; nothing is committed.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRunInProgress = errors.New("pipeline run already in progress")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSchema), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
