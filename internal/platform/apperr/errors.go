// Package apperr defines the structured error taxonomy shared by services,
// repositories and HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

// Code categorizes an application error.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeForeignKey Code = "foreign_key"
	CodeInternal   Code = "internal"
	CodeTimeout    Code = "timeout"
	CodeCanceled   Code = "canceled"
)

// AppError is an error with a code, a caller-facing message, an optional
// field and an optional cause.
type AppError struct {
	Code    Code
	Message string
	Field   string
	Cause   error
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

// Validation reports missing or malformed caller input.
func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// Validationf is Validation with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Required reports a missing required field.
func Required(field string) *AppError {
	return &AppError{Code: CodeValidation, Message: field + " is required", Field: field}
}

// NotFound reports a missing record or a missing referenced entity.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NotFoundf is NotFound with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a clash with existing data.
func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Cause: cause}
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}

// IsNotFound is shorthand for Is(err, CodeNotFound).
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}
