package infrastructure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "credguard-test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
}

// TestOTelInitialization tests OpenTelemetry initialization
func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelInitializationTwice(t *testing.T) {
	first, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer first.Shutdown(context.Background())

	second, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer second.Shutdown(context.Background())
}

// TestTraceCorrelation tests trace ID correlation
func TestTraceCorrelation(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := otel.Tracer("test").Start(context.Background(), "test-operation")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	assert.Len(t, traceID, 32)
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestBusinessMetrics(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.HTTPRequestsTotal.Add(ctx, 1)
	metrics.HTTPRequestDuration.Record(ctx, 0.25)
	metrics.HTTPActiveRequests.Add(ctx, 1)
	metrics.SystemErrors.Add(ctx, 1)
}

func TestSpanOperations(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "span-ops")
	defer span.End()

	assert.True(t, SpanFromContext(ctx).IsRecording())

	assert.NotPanics(t, func() {
		AddSpanEvent(ctx, "check.completed", map[string]any{
			"method":  "behavior",
			"passed":  false,
			"score":   75,
			"elapsed": int64(12),
			"ratio":   0.5,
			"nodes":   []string{"a"},
		})
		SetSpanAttributes(ctx, map[string]any{"identity.id": "user-1", "valid": true})
		RecordError(ctx, errors.New("boom"))
	})

	// no-ops on a context without a span
	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "noop", nil)
		RecordError(context.Background(), errors.New("ignored"))
	})
}

func TestPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	counter, err := providers.Meter.Int64Counter("credguard_test_counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metric.WithAttributes())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "credguard_test_counter")
}

func TestOTelConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OTelConfig)
		wantErr bool
	}{
		{"metrics disabled", func(c *OTelConfig) { c.EnableMetrics = false }, false},
		{"tracing disabled", func(c *OTelConfig) { c.EnableTracing = false }, false},
		{"no metric exporter", func(c *OTelConfig) { c.MetricExporter = "none" }, false},
		{"unsupported trace exporter", func(c *OTelConfig) { c.TraceExporter = "jaeger" }, true},
		{"unsupported metric exporter", func(c *OTelConfig) { c.MetricExporter = "statsd" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testOTelConfig()
			tt.mutate(cfg)

			providers, err := InitializeOTel(cfg, quietLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, providers.Shutdown(context.Background()))
		})
	}
}

func TestDefaultOTelConfig(t *testing.T) {
	t.Setenv("CREDGUARD_OTEL_ENVIRONMENT", "staging")
	cfg := DefaultOTelConfig()
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "credguard", cfg.ServiceName)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}
