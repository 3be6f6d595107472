package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Client protocol violations: rejected with a reason, connection stays open
	ErrCodeInvalidRole        ErrorCode = "INVALID_ROLE"
	ErrCodeInvalidMessageType ErrorCode = "INVALID_MESSAGE_TYPE"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"

	// Pairing: no match yet is a wait state, not a failure
	ErrCodePeerUnavailable ErrorCode = "PEER_UNAVAILABLE"

	// Inference backend
	ErrCodeInferenceTransient ErrorCode = "INFERENCE_TRANSIENT"
	ErrCodeInferenceFatal     ErrorCode = "INFERENCE_FATAL"

	// Persistence failures are logged and swallowed, never propagated
	// into conversation state
	ErrCodePersistence ErrorCode = "PERSISTENCE_FAILURE"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidRole(role string) *AppError {
	return New(ErrCodeInvalidRole, fmt.Sprintf("Invalid role: %s", role))
}

func InvalidMessageType(msgType string) *AppError {
	return New(ErrCodeInvalidMessageType, fmt.Sprintf("Invalid message type: %s", msgType))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func PeerUnavailable() *AppError {
	return New(ErrCodePeerUnavailable, "No peer available yet")
}

func InferenceTransient(cause error) *AppError {
	return Wrap(ErrCodeInferenceTransient, "Inference backend temporarily unavailable", cause)
}

func InferenceFatal(cause error) *AppError {
	return Wrap(ErrCodeInferenceFatal, "Inference backend request failed", cause)
}

func Persistence(cause error) *AppError {
	return Wrap(ErrCodePersistence, "Persistence error", cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
