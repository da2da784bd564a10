package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noonClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC) }
}

func clockAt(hour int) func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 11, hour, 30, 0, 0, time.UTC) }
}

func TestIsOffHours(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		expected := hour < 6 || hour > 22
		assert.Equal(t, expected, IsOffHours(hour), "hour=%d", hour)
	}
}

func seedProfile(t *testing.T, store ProfileStore, id string, fn func(*IdentityProfile)) {
	t.Helper()
	_, err := store.Update(context.Background(), id, func(p *IdentityProfile) error {
		fn(p)
		return nil
	})
	require.NoError(t, err)
}

func anomaliesOf(result CheckResult) []string {
	return result.Details["anomalies"].([]string)
}

func TestBehaviorNewIdentityPasses(t *testing.T) {
	analyzer := NewBehaviorAnalyzer(NewMemoryProfileStore(), 100, noonClock())

	result := analyzer.Check(context.Background(), "new", ValidationContext{Address: "10.0.0.1", RequestsThisHour: 5000})
	assert.True(t, result.Passed)
	assert.Empty(t, anomaliesOf(result))
}

func TestBehaviorVolumeSpike(t *testing.T) {
	store := NewMemoryProfileStore()
	seedProfile(t, store, "user", func(p *IdentityProfile) {
		p.TotalRequests = 10
		p.AvgRequestsPerHour = 50
		p.TypicalAddresses["10.0.0.1"] = struct{}{}
	})
	analyzer := NewBehaviorAnalyzer(store, 100, noonClock())

	tests := []struct {
		requests int
		passed   bool
	}{
		{150, true},
		{151, false},
		{400, false},
	}
	for _, tt := range tests {
		result := analyzer.Check(context.Background(), "user", ValidationContext{Address: "10.0.0.1", RequestsThisHour: tt.requests})
		assert.Equal(t, tt.passed, result.Passed, "requests=%d", tt.requests)
		if !tt.passed {
			assert.Equal(t, []string{AnomalyUnusualVolume}, anomaliesOf(result))
		}
	}
}

func TestBehaviorNewAddress(t *testing.T) {
	store := NewMemoryProfileStore()
	seedProfile(t, store, "user", func(p *IdentityProfile) {
		p.TotalRequests = 1
		p.TypicalAddresses["10.0.0.1"] = struct{}{}
	})
	analyzer := NewBehaviorAnalyzer(store, 100, noonClock())

	result := analyzer.Check(context.Background(), "user", ValidationContext{Address: "10.0.0.9"})
	assert.False(t, result.Passed)
	assert.Equal(t, []string{AnomalyNewAddress}, anomaliesOf(result))
}

func TestBehaviorOffHours(t *testing.T) {
	store := NewMemoryProfileStore()
	analyzer := NewBehaviorAnalyzer(store, 100, clockAt(3))

	result := analyzer.Check(context.Background(), "user", ValidationContext{})
	assert.False(t, result.Passed)
	assert.Equal(t, []string{AnomalyOffHours}, anomaliesOf(result))

	seedProfile(t, store, "night-owl", func(p *IdentityProfile) {
		for i := 0; i < 5; i++ {
			p.RecordUsage(UsagePattern{Hour: 2, OffHours: true, Requests: 1}, 100, 24)
		}
	})
	result = analyzer.Check(context.Background(), "night-owl", ValidationContext{})
	assert.True(t, result.Passed, "five historical off-hours entries make it normal")
}

func TestBehaviorCheckDoesNotMutate(t *testing.T) {
	store := NewMemoryProfileStore()
	analyzer := NewBehaviorAnalyzer(store, 100, noonClock())

	analyzer.Check(context.Background(), "user", ValidationContext{Address: "10.0.0.1"})
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBehaviorRecord(t *testing.T) {
	analyzer := NewBehaviorAnalyzer(NewMemoryProfileStore(), 2, clockAt(23))
	p := NewIdentityProfile("user", time.Now())

	for i := 0; i < 3; i++ {
		analyzer.Record(p, ValidationContext{Address: "10.0.0.1", RequestsThisHour: 10}, RiskLow)
	}

	assert.Equal(t, int64(3), p.TotalRequests)
	assert.Len(t, p.UsagePatterns, 2)
	assert.True(t, p.UsagePatterns[0].OffHours)
	assert.Equal(t, 23, p.UsagePatterns[0].Hour)
	assert.InDelta(t, 10.0, p.AvgRequestsPerHour, 0.0001)
	assert.Equal(t, []string{"10.0.0.1"}, p.Addresses())
}
