// Package apperror defines the error kinds that cross the service/handler boundary.
//
// Only three things ever leave the sandbox core as a Go error:
//   - ErrValidation: the request was rejected before any workspace existed (HTTP 400)
//   - ErrWorkspace:  the scratch directory could not be created (HTTP 500)
//   - ErrNotFound:   a history record lookup missed (HTTP 404)
//
// Everything that goes wrong while compiling or running submitted code is NOT an
// error at this level. It is a normal result with the error flag set.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrWorkspace  = errors.New("workspace unavailable")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs only
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is works for either.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// WorkspaceUnavailable reports a host-level failure to prepare the scratch area.
// The message is safe to show to clients; the cause is not.
func WorkspaceUnavailable(cause error) *AppError {
	return &AppError{
		Err:     ErrWorkspace,
		Message: "execution workspace could not be created",
		Cause:   cause,
	}
}
