package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeAuthorization ErrorType = "authorization"
	ErrorTypeState         ErrorType = "state"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal"
)

// ConsentError is a structured error carried through the consent system.
// Every failure is reported synchronously to the caller; none are retried
// internally, since each represents a caller-input or caller-authorization
// problem rather than a transient condition.
type ConsentError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *ConsentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ConsentError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidDuration = "INVALID_DURATION"
	ErrCodeNotAuthorized   = "NOT_AUTHORIZED"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeNotActive       = "NOT_ACTIVE"
	ErrCodeRequestNotFound = "REQUEST_NOT_FOUND"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// NewInvalidDurationError reports a zero hour count where a positive one is
// required.
func NewInvalidDurationError(message string) *ConsentError {
	return &ConsentError{Type: ErrorTypeValidation, Code: ErrCodeInvalidDuration, Message: message}
}

// NewNotAuthorizedError reports a caller that is not the patient for a
// patient-scoped mutation.
func NewNotAuthorizedError(message string) *ConsentError {
	return &ConsentError{Type: ErrorTypeAuthorization, Code: ErrCodeNotAuthorized, Message: message}
}

// NewInvalidStateError reports an illegal state-machine transition, such as
// responding to an already-resolved request.
func NewInvalidStateError(message string) *ConsentError {
	return &ConsentError{Type: ErrorTypeState, Code: ErrCodeInvalidState, Message: message}
}

// NewNotActiveError reports an extension attempt against a grant that is
// expired, revoked, or was never made.
func NewNotActiveError(message string) *ConsentError {
	return &ConsentError{Type: ErrorTypeState, Code: ErrCodeNotActive, Message: message}
}

// NewRequestNotFoundError reports a request ID outside the patient's history.
func NewRequestNotFoundError(message string) *ConsentError {
	return &ConsentError{Type: ErrorTypeNotFound, Code: ErrCodeRequestNotFound, Message: message}
}

// NewValidationError creates a generic validation error
func NewValidationError(code, message string) *ConsentError {
	return &ConsentError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewInternalError creates a new internal error wrapping its cause
func NewInternalError(message string, cause error) *ConsentError {
	return &ConsentError{Type: ErrorTypeInternal, Code: ErrCodeInternalError, Message: message, Cause: cause}
}

// HasCode reports whether err carries the given error code. It unwraps
// ConsentError values directly and falls back to scanning the message, since
// errors that crossed the chaincode boundary arrive flattened to strings.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var ce *ConsentError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return strings.Contains(err.Error(), code)
}
