package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures raised inside the validation engine
type ErrorType string

const (
	ErrTypeCredential     ErrorType = "CREDENTIAL"
	ErrTypeNodeQuery      ErrorType = "NODE_QUERY"
	ErrTypeGeoResolution  ErrorType = "GEO_RESOLUTION"
	ErrTypeCheckExecution ErrorType = "CHECK_EXECUTION"
	ErrTypeCacheWrite     ErrorType = "CACHE_WRITE"
	ErrTypeStorage        ErrorType = "STORAGE"
	ErrTypeValidation     ErrorType = "VALIDATION"
	ErrTypeNotFound       ErrorType = "NOT_FOUND"
	ErrTypeConfig         ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// NewCredentialError creates a credential-related error
func NewCredentialError(message string, cause error) *AppError {
	return NewAppError(ErrTypeCredential, message, cause)
}

// NewNodeQueryError wraps a failed peer query. node identifies the peer.
func NewNodeQueryError(node string, cause error) *AppError {
	return NewAppError(ErrTypeNodeQuery, "peer query failed", cause).WithContext("node", node)
}

// NewGeoResolutionError wraps a failed address lookup
func NewGeoResolutionError(address string, cause error) *AppError {
	return NewAppError(ErrTypeGeoResolution, "geo resolution failed", cause).WithContext("address", address)
}

// NewCheckExecutionError wraps a failure inside a single check
func NewCheckExecutionError(method string, cause error) *AppError {
	return NewAppError(ErrTypeCheckExecution, fmt.Sprintf("%s check failed to execute", method), cause).
		WithContext("method", method)
}

// NewCacheWriteError wraps a failed cache write
func NewCacheWriteError(cause error) *AppError {
	return NewAppError(ErrTypeCacheWrite, "cache write failed", cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
