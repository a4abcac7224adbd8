package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrDelivery     = errors.New("delivery failed")
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

func NotFound(resource, key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with %s", resource, key),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with %s", resource, key),
	}
}

// Unauthorized returns an AppError carrying a deliberately generic message.
// The internal cause stays in logs; the caller only ever sees a denial —
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "authentication failed",
	}
}

// Delivery wraps a notification-gateway failure. It is logged by the
// services and never surfaced as a request failure: a created account is
// not rolled back because an email bounced.
func Delivery(cause error) *AppError {
	return &AppError{
		Err:     ErrDelivery,
		Message: fmt.Sprintf("sending notification: %v", cause),
	}
}
