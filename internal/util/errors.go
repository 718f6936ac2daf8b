package util

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for the HTTP layer and for logging.
type ErrorKind int

const (
	// KindInternal is an implementation bug or unexpected failure (HTTP 500)
	KindInternal ErrorKind = iota

	// KindValidation is bad client input (HTTP 400)
	KindValidation

	// KindNotFound means a named entity does not exist (HTTP 404)
	KindNotFound

	// KindConflict means the operation clashes with current state (HTTP 409)
	KindConflict

	// KindUpstream means the external metadata service failed (HTTP 502)
	KindUpstream

	// KindUpstreamTimeout means the external call exceeded its deadline (HTTP 504)
	KindUpstreamTimeout
)

// AppError is an error with a kind the HTTP layer can map to a status code.
// Upstream errors additionally carry the upstream status and a truncated
// body snippet in Details for the caller's log.
type AppError struct {
	Kind       ErrorKind
	Message    string
	Details    string
	StatusCode int // upstream HTTP status, when Kind is upstream
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports invalid client input
func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing entity
func NewNotFoundError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports a state conflict
func NewConflictError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewUpstreamError reports an external service failure.
// details is truncated to 500 characters.
func NewUpstreamError(statusCode int, message, details string) *AppError {
	return &AppError{
		Kind:       KindUpstream,
		Message:    message,
		Details:    TruncateString(details, 500),
		StatusCode: statusCode,
	}
}

// NewUpstreamTimeoutError reports an external call that exceeded its deadline
func NewUpstreamTimeoutError(message string, err error) *AppError {
	return &AppError{Kind: KindUpstreamTimeout, Message: message, Err: err}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the error kind, defaulting to internal
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// AsAppError extracts the AppError from an error chain, or nil
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// TruncateString cuts s to at most n bytes, appending an ellipsis marker
func TruncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
