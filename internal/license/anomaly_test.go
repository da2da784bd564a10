package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicScorer(t *testing.T) {
	scorer := NewHeuristicScorer()

	tests := []struct {
		name     string
		features Features
		score    float64
		anomaly  bool
	}{
		{"quiet", Features{RequestsPerHour: 10}, 0, false},
		{"volume only", Features{RequestsPerHour: 1001}, 0.3, false},
		{"volume at limit", Features{RequestsPerHour: 1000}, 0, false},
		{"rapid and volume at threshold", Features{RequestsPerHour: 2000, RapidSuccession: 150}, 0.7, false},
		{"rapid volume and ips", Features{RequestsPerHour: 2000, RapidSuccession: 150, UniqueIPs: 11}, 0.9, true},
		{"everything caps at one", Features{RequestsPerHour: 2000, RapidSuccession: 150, UniqueIPs: 11, OffHoursUsage: 1}, 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.score, scorer.Score(tt.features), 1e-9)
			prediction := scorer.Predict(tt.features)
			assert.Equal(t, tt.anomaly, prediction.Anomaly)
		})
	}
}

func TestExtractFeatures(t *testing.T) {
	saturdayNight := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	f := ExtractFeatures(ValidationContext{
		RequestsThisHour: 40,
		UniqueIPs:        3,
		RapidRequests:    7,
		LocationChanged:  true,
	}, saturdayNight)

	assert.Equal(t, 40.0, f.RequestsPerHour)
	assert.Equal(t, 3.0, f.UniqueIPs)
	assert.Equal(t, 7.0, f.RapidSuccession)
	assert.Equal(t, 1.0, f.OffHoursUsage)
	assert.Equal(t, 1.0, f.WeekendUsage)
	assert.Equal(t, 1.0, f.GeolocationChange)
	assert.Equal(t, 0.0, f.DeviceChange)
}

type panickingScorer struct{}

func (panickingScorer) Predict(Features) Prediction { panic("model unavailable") }

type fixedScorer struct{ anomaly bool }

func (s fixedScorer) Predict(Features) Prediction {
	return Prediction{Anomaly: s.anomaly, Confidence: 0.99}
}

func TestAnomalyScorerCheck(t *testing.T) {
	ctx := context.Background()

	result := NewAnomalyScorer(nil, noonClock()).Check(ctx, ValidationContext{RequestsThisHour: 5})
	assert.True(t, result.Passed)

	result = NewAnomalyScorer(fixedScorer{anomaly: true}, noonClock()).Check(ctx, ValidationContext{})
	assert.False(t, result.Passed)
	assert.Equal(t, 0.99, result.Details["confidence"])

	result = NewAnomalyScorer(panickingScorer{}, noonClock()).Check(ctx, ValidationContext{})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Error, "model unavailable")
}
