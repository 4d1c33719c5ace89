// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services return these errors; handlers translate them to HTTP status codes
// (see handler/response.go). Callers test for a category with errors.Is
// against the sentinel values, and extract the message with errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrExternal     = errors.New("external service error")
)

type AppError struct {
	Err     error  // sentinel category
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure (external services)
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the category and, when present, the underlying cause,
// so errors.Is works for either.
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

// Conflict reports that a unique value is already in use,
// e.g. Conflict("username", "alice") → `username "alice" is already taken`.
func Conflict(field, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %q is already taken", field, value),
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

// Unauthorized means no authenticated identity was present where one is required.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "authentication required",
	}
}

// ExternalService wraps a failure of a collaborator outside this process
// (the identity provider). The cause is kept for logging but never shown.
func ExternalService(service string, cause error) *AppError {
	return &AppError{
		Err:     ErrExternal,
		Message: fmt.Sprintf("%s is unavailable", service),
		Cause:   cause,
	}
}
