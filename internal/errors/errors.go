package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Session
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Validation
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired   ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"
	ErrCodeEmptyQuery        ErrorCode = "EMPTY_QUERY"

	// Query lifecycle
	ErrCodeQueryNotFound       ErrorCode = "QUERY_NOT_FOUND"
	ErrCodeQueryStillRunning   ErrorCode = "QUERY_STILL_RUNNING"
	ErrCodeQueryFailed         ErrorCode = "QUERY_FAILED"
	ErrCodeQueryNotCancellable ErrorCode = "QUERY_NOT_CANCELLABLE"

	// Warehouse
	ErrCodeWarehouseUnavailable ErrorCode = "WAREHOUSE_UNAVAILABLE"
	ErrCodeConnectionFailed     ErrorCode = "CONNECTION_FAILED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
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

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found or expired. Please reconnect.")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func InvalidIdentifier(name string, reason string) *AppError {
	return New(ErrCodeInvalidIdentifier, fmt.Sprintf("Invalid identifier %q: %s", name, reason))
}

func EmptyQuery() *AppError {
	return New(ErrCodeEmptyQuery, "SQL query cannot be empty")
}

func QueryNotFound(queryID string) *AppError {
	return New(ErrCodeQueryNotFound, fmt.Sprintf("Query %q not found", queryID))
}

func QueryStillRunning(queryID string) *AppError {
	return New(ErrCodeQueryStillRunning, fmt.Sprintf("Query %q is still running", queryID))
}

func QueryFailed(message string) *AppError {
	return New(ErrCodeQueryFailed, fmt.Sprintf("Query failed: %s", message))
}

func QueryNotCancellable(status string) *AppError {
	return New(ErrCodeQueryNotCancellable, fmt.Sprintf("Cannot cancel query with status %q", status))
}

func WarehouseUnavailable(cause error) *AppError {
	return Wrap(ErrCodeWarehouseUnavailable, "Warehouse unreachable", cause)
}

func ConnectionFailed(reason string) *AppError {
	return New(ErrCodeConnectionFailed, reason)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
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
