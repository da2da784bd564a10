package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewAppError(ErrTypeValidation, "identity_id is required", nil),
			expected: "[VALIDATION] identity_id is required",
		},
		{
			name:     "with cause",
			err:      NewAppError(ErrTypeStorage, "profile write failed", errors.New("connection refused")),
			expected: "[STORAGE] profile write failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := ErrNodeUnavailable
	err := NewNodeQueryError("http://node-a", cause)

	assert.ErrorIs(t, err, ErrNodeUnavailable)
	assert.Equal(t, cause, errors.Unwrap(err))

	wrapped := fmt.Errorf("consensus: %w", err)
	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, ErrTypeNodeQuery, appErr.Type)
	assert.Equal(t, "http://node-a", appErr.Context["node"])
}

func TestAppError_WithContext(t *testing.T) {
	err := &AppError{Type: ErrTypeCheckExecution, Message: "boom"}
	err.WithContext("method", "geolocation").WithContext("attempt", 2)

	assert.Equal(t, "geolocation", err.Context["method"])
	assert.Equal(t, 2, err.Context["attempt"])
}

func TestTaxonomyConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
	}{
		{"credential", NewCredentialError("bad signature", cause), ErrTypeCredential},
		{"node query", NewNodeQueryError("n1", cause), ErrTypeNodeQuery},
		{"geo resolution", NewGeoResolutionError("10.0.0.1", cause), ErrTypeGeoResolution},
		{"check execution", NewCheckExecutionError("fingerprint", cause), ErrTypeCheckExecution},
		{"cache write", NewCacheWriteError(cause), ErrTypeCacheWrite},
		{"storage", NewStorageError("write", cause), ErrTypeStorage},
		{"validation", NewAppValidationError("bad"), ErrTypeValidation},
		{"not found", NewNotFoundError("profile"), ErrTypeNotFound},
		{"config", NewConfigError("bad", cause), ErrTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantType, TypeOf(tt.err))
			assert.NotNil(t, tt.err.Context)
		})
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
	assert.Equal(t, ErrTypeGeoResolution, TypeOf(fmt.Errorf("wrap: %w", NewGeoResolutionError("1.1.1.1", ErrGeoUnresolvable))))
}

func TestNewNotFoundErrorMessage(t *testing.T) {
	assert.Equal(t, "[NOT_FOUND] profile not found", NewNotFoundError("profile").Error())
}
