package errors

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"credguard/internal/shared/testutil"
)

func TestErrorMiddleware_Handler(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		body      string
		wantCode  int
		wantLevel slog.Level
	}{
		{
			name:      "successful request",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			wantCode:  http.StatusOK,
			wantLevel: slog.LevelInfo,
		},
		{
			name:      "client error",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			body:      `{"credential":"eyJhbGciOi","identity_id":"u1"}`,
			wantCode:  http.StatusBadRequest,
			wantLevel: slog.LevelWarn,
		},
		{
			name:      "server error",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantCode:  http.StatusBadGateway,
			wantLevel: slog.LevelError,
		},
		{
			name:      "panic",
			handler:   func(w http.ResponseWriter, r *http.Request) { panic("boom") },
			wantCode:  http.StatusInternalServerError,
			wantLevel: slog.LevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

			var r *http.Request
			if tt.body != "" {
				r = httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(tt.body))
			} else {
				r = httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil)
			}
			w := httptest.NewRecorder()

			mw.Handler(tt.handler).ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.NotEmpty(t, logs.GetRecordsByLevel(tt.wantLevel))
		})
	}
}

func TestErrorMiddleware_RedactsCredential(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/validate",
		strings.NewReader(`{"credential":"super-secret-token","identity_id":"u1"}`))
	w := httptest.NewRecorder()

	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})).ServeHTTP(w, r)

	for _, rec := range logs.GetRecords() {
		if body, ok := rec.Attrs["request_body"].(string); ok {
			assert.NotContains(t, body, "super-secret-token")
			assert.Contains(t, body, "[REDACTED]")
			return
		}
	}
	t.Fatal("request_body was not logged")
}

func TestSanitizeRequestBody(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "credential field",
			input:    `{"credential": "abc", "identity_id": "u1"}`,
			expected: `{"credential":"[REDACTED]","identity_id":"u1"}`,
		},
		{
			name:     "admin token and secret",
			input:    `{"admin_token": "t", "secret": "s", "reason": "incident"}`,
			expected: `{"admin_token":"[REDACTED]","reason":"incident","secret":"[REDACTED]"}`,
		},
		{
			name:     "no sensitive fields",
			input:    `{"period": "24h"}`,
			expected: `{"period":"24h"}`,
		},
		{
			name:     "invalid JSON",
			input:    `not json`,
			expected: `not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeRequestBody(tt.input))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	RecoveryMiddleware(handler)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
