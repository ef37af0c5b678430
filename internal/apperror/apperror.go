// Package apperror defines the domain errors shared by every layer.
//
// Services return these errors; HTTP handlers map them to status codes and the
// backend client maps status codes back to them, so errors.Is works on both
// sides of the wire.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // actual error
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

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means no valid session accompanied the request.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// FromKind rebuilds an AppError from the machine-readable kind carried in an
// API error body (see handler.ErrorResponse). Unknown kinds return nil.
func FromKind(kind, message string) *AppError {
	var sentinel error
	switch kind {
	case "not_found":
		sentinel = ErrNotFound
	case "validation_error":
		sentinel = ErrValidation
	case "forbidden":
		sentinel = ErrForbidden
	case "unauthorized":
		sentinel = ErrUnauthorized
	default:
		return nil
	}
	return &AppError{Err: sentinel, Message: message}
}
