// Package apperror defines the domain errors shared by every layer.
//
// Repositories and services return *AppError values wrapping one of the
// sentinel kinds below. The HTTP layer maps the kind to a status code with
// errors.Is, so nothing below the handler knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Conflictf builds a conflict error with a caller-supplied message.
// Used where the generic "<resource> conflict with id" text would leak
// storage details to the end user.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// Kind returns the sentinel kind carried by err, or nil when err is not
// (and does not wrap) an *AppError.
func Kind(err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return nil
	}
	return appErr.Err
}
