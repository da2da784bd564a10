package license

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Features is the input vector of an anomaly Scorer
type Features struct {
	RequestsPerHour   float64 `json:"requests_per_hour"`
	UniqueIPs         float64 `json:"unique_ips"`
	RapidSuccession   float64 `json:"rapid_succession"`
	OffHoursUsage     float64 `json:"off_hours_usage"`
	WeekendUsage      float64 `json:"weekend_usage"`
	GeolocationChange float64 `json:"geolocation_change"`
	DeviceChange      float64 `json:"device_change"`
}

// Prediction is a Scorer's verdict
type Prediction struct {
	Anomaly    bool    `json:"anomaly"`
	Confidence float64 `json:"confidence"`
}

// Scorer turns features into a prediction. Implementations can be swapped for a trained model.
type Scorer interface {
	Predict(f Features) Prediction
}

// HeuristicScorer is the fixed weighted-sum scorer
type HeuristicScorer struct {
	Threshold float64
}

// NewHeuristicScorer returns the scorer with its default 0.7 threshold
func NewHeuristicScorer() HeuristicScorer {
	return HeuristicScorer{Threshold: 0.7}
}

// Score computes the capped weighted sum
func (h HeuristicScorer) Score(f Features) float64 {
	score := 0.0
	if f.RequestsPerHour > 1000 {
		score += 0.3
	}
	if f.UniqueIPs > 10 {
		score += 0.2
	}
	if f.RapidSuccession > 100 {
		score += 0.4
	}
	if f.OffHoursUsage > 0.8 {
		score += 0.2
	}
	// round away float noise so 0.3+0.4 compares as 0.7
	return math.Min(1.0, math.Round(score*1000)/1000)
}

// Predict implements Scorer
func (h HeuristicScorer) Predict(f Features) Prediction {
	score := h.Score(f)
	return Prediction{Anomaly: score > h.Threshold, Confidence: score}
}

// AnomalyScorer runs a Scorer over features extracted from the request context
type AnomalyScorer struct {
	scorer Scorer
	now    func() time.Time
}

// NewAnomalyScorer wraps scorer. A nil scorer uses the heuristic.
func NewAnomalyScorer(scorer Scorer, now func() time.Time) *AnomalyScorer {
	if scorer == nil {
		scorer = NewHeuristicScorer()
	}
	if now == nil {
		now = time.Now
	}
	return &AnomalyScorer{scorer: scorer, now: now}
}

// ExtractFeatures builds the feature vector for vctx at t
func ExtractFeatures(vctx ValidationContext, t time.Time) Features {
	return Features{
		RequestsPerHour:   float64(vctx.RequestsThisHour),
		UniqueIPs:         float64(vctx.UniqueIPs),
		RapidSuccession:   float64(vctx.RapidRequests),
		OffHoursUsage:     boolFeature(IsOffHours(t.Hour())),
		WeekendUsage:      boolFeature(t.Weekday() == time.Saturday || t.Weekday() == time.Sunday),
		GeolocationChange: boolFeature(vctx.LocationChanged),
		DeviceChange:      boolFeature(vctx.DeviceChanged),
	}
}

// Check passes unless the scorer predicts an anomaly
func (a *AnomalyScorer) Check(ctx context.Context, vctx ValidationContext) (result CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(MethodAnomaly, fmt.Errorf("scorer panic: %v", r))
		}
	}()

	features := ExtractFeatures(vctx, a.now())
	prediction := a.scorer.Predict(features)

	return CheckResult{
		Method: MethodAnomaly,
		Passed: !prediction.Anomaly,
		Details: map[string]any{
			"anomaly":    prediction.Anomaly,
			"confidence": prediction.Confidence,
			"features":   features,
		},
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
