// Package apperror defines the error kinds surfaced to users: invalid input,
// failed backend calls and incomplete export responses. Each kind is scoped to
// the action that triggered it.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ValidationError reports a missing or invalid input field. No request is
// issued when one is returned.
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

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NetworkError reports a failed call to the backend: transport failure,
// timeout, or a non-2xx status.
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	msg := e.Op + " failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// MissingMetadataError reports an export response without the header that
// names the document.
type MissingMetadataError struct {
	Header string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("response is missing the %s header", e.Header)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is, or wraps, a NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsMissingMetadata reports whether err is, or wraps, a MissingMetadataError.
func IsMissingMetadata(err error) bool {
	var target *MissingMetadataError
	return errors.As(err, &target)
}
