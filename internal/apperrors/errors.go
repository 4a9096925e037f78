package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAuthorization       ErrorType = "AUTHORIZATION_FAILURE"
	ErrValidation          ErrorType = "VALIDATION_FAILURE"
	ErrInsufficientBalance ErrorType = "INSUFFICIENT_BALANCE"
	ErrArithmetic          ErrorType = "ARITHMETIC_FAULT"
	ErrInvariant           ErrorType = "INVARIANT_VIOLATION"
	ErrNotFound            ErrorType = "NOT_FOUND"
	ErrConflict            ErrorType = "CONFLICT"
	ErrInternal            ErrorType = "INTERNAL_ERROR"
)

// AppError is the error shape returned by every exchange operation.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may resubmit after refreshing state.
func (e *AppError) Retryable() bool {
	return e.Type == ErrConflict
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Authorization(msg string) *AppError { return New(ErrAuthorization, msg, nil) }

func Validation(msg string) *AppError { return New(ErrValidation, msg, nil) }

func InsufficientBalance(msg string) *AppError { return New(ErrInsufficientBalance, msg, nil) }

func Arithmetic(msg string) *AppError { return New(ErrArithmetic, msg, nil) }

func Invariant(msg string) *AppError { return New(ErrInvariant, msg, nil) }

func NotFound(msg string) *AppError { return New(ErrNotFound, msg, nil) }

func Conflict(msg string) *AppError { return New(ErrConflict, msg, nil) }

// Wrap converts any error into an AppError. Errors that already carry an
// AppError anywhere in their chain keep its type.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, "internal error", err)
}

// TypeOf returns the error type carried by err, or ErrInternal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrInternal
}

// Is reports whether err carries the given error type.
func Is(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrAuthorization:
		return http.StatusForbidden
	case ErrInsufficientBalance, ErrArithmetic:
		return http.StatusUnprocessableEntity
	case ErrInvariant, ErrConflict:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrConflict:
		return "Refresh pool state and retry."
	case ErrInsufficientBalance:
		return "Fund the source account and retry."
	case ErrAuthorization:
		return "Sign with the key that controls the pool or authority."
	default:
		return ""
	}
}
