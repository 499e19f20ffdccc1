package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input: unrecognized enum values,
// out-of-schema payloads, unparseable fields. Surfaced to the caller as a
// 4xx-equivalent and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ClassifierError marks a model failure. Fatal to the request; callers
// may retry, the pipeline never does.
type ClassifierError struct {
	Domain string
	Err    error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Domain, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }
