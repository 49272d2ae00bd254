package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by every service. Errors returned by services wrap one
// of these sentinels, so callers match with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidInvite = errors.New("invite is no longer valid")
)

// Error is a domain error with a caller-facing message.
type Error struct {
	kind    error
	message string
}

func (e *Error) Error() string { return e.message }

// Unwrap returns the taxonomy sentinel.
func (e *Error) Unwrap() error { return e.kind }

// NotFound returns an ErrNotFound error with the given message.
func NotFound(format string, args ...any) error {
	return &Error{kind: ErrNotFound, message: fmt.Sprintf(format, args...)}
}

// Forbidden returns an ErrForbidden error with the given message.
func Forbidden(format string, args ...any) error {
	return &Error{kind: ErrForbidden, message: fmt.Sprintf(format, args...)}
}

// InvalidInvite returns an ErrInvalidInvite error with the given message.
func InvalidInvite(format string, args ...any) error {
	return &Error{kind: ErrInvalidInvite, message: fmt.Sprintf(format, args...)}
}

// FieldError is a validation failure for a single request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level validation failures.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError returns a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add records a failure for field.
func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether field has at least one failure.
func (v *ValidationError) Has(field string) bool {
	for _, f := range v.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns v as an error when it holds failures, nil otherwise.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Unwrap returns ErrValidation.
func (v *ValidationError) Unwrap() error { return ErrValidation }
