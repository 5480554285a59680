package rag

import (
	"errors"
	"fmt"
)

// ValidationError reports a caller mistake (bad weights, missing fields).
// It is fatal for the call that raised it and is never retried.
type ValidationError struct {
	// Msg describes what was invalid.
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// NewValidationError constructs a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamServiceError reports a failure in an external dependency
// (embedding service, generation service, vector store). Batch pipelines
// log-and-continue on it; interactive paths surface it as a request failure.
type UpstreamServiceError struct {
	// Service names the failing dependency (e.g. "embedder", "qdrant").
	Service string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Service, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *UpstreamServiceError) Unwrap() error { return e.Err }

// ErrNotFound is returned when a requested context or document does not
// exist. Pool computation short-circuits on it with an explicit empty result.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with a description of what was missing.
func NotFound(what, key string) error {
	return fmt.Errorf("%s %q: %w", what, key, ErrNotFound)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
