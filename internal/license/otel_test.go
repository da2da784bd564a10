package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"credguard/internal/shared/testutil"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestValidationMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := InitializeValidationMetrics(provider.Meter(MeterName))
	require.NoError(t, err)

	m, err := NewManager(testValidationConfig(), NewTokenValidator(testutil.TestTokenSecret, "credguard"), nil, nil, nil,
		WithLogger(quietLogger(t)), WithMetrics(metrics), WithClock(noonClock()))
	require.NoError(t, err)

	ctx := context.Background()
	cred := testutil.MintCredential(t, "metered", "", time.Hour)
	_, err = m.Validate(ctx, cred, ValidationContext{
		IdentityID:       "metered",
		RequestsThisHour: 1,
		Device:           testutil.DeviceAttributes("metered-host"),
	})
	require.NoError(t, err)
	_, err = m.Validate(ctx, "garbage", ValidationContext{IdentityID: "metered"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), collectSum(t, reader, "credguard_validation_attempts_total"))

	_, hit := m.CachedOutcome(ctx, cred)
	assert.True(t, hit)
	_, hit = m.CachedOutcome(ctx, "garbage")
	assert.False(t, hit)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *ValidationMetrics
	assert.NotPanics(t, func() {
		metrics.RecordValidation(context.Background(), &ValidationOutcome{}, time.Second)
		metrics.RecordCacheLookup(context.Background(), true)
		metrics.RecordFleetScan(context.Background(), FleetStats{})
	})
}
