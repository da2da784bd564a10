package license

import (
	"context"
	"errors"
	"time"

	"credguard/internal/config"
	apperrors "credguard/internal/errors"
)

// IsOffHours reports whether hour falls before 06:00 or after 22:59
func IsOffHours(hour int) bool {
	return hour < config.OffHoursStart || hour > config.OffHoursEnd
}

// BehaviorAnalyzer flags request volume spikes, unseen addresses and unusual off-hours use
type BehaviorAnalyzer struct {
	store       ProfileStore
	now         func() time.Time
	maxPatterns int
}

// NewBehaviorAnalyzer creates an analyzer over store. maxPatterns bounds each profile's usage ring.
func NewBehaviorAnalyzer(store ProfileStore, maxPatterns int, now func() time.Time) *BehaviorAnalyzer {
	if now == nil {
		now = time.Now
	}
	return &BehaviorAnalyzer{store: store, now: now, maxPatterns: maxPatterns}
}

// Check evaluates vctx against the identity's stored profile without modifying it
func (b *BehaviorAnalyzer) Check(ctx context.Context, identityID string, vctx ValidationContext) CheckResult {
	profile, err := b.store.Get(ctx, identityID)
	if errors.Is(err, apperrors.ErrProfileNotFound) {
		profile = NewIdentityProfile(identityID, b.now())
	} else if err != nil {
		return failedResult(MethodBehavior, apperrors.NewCheckExecutionError(string(MethodBehavior), err))
	}

	hour := b.now().Hour()
	anomalies := b.detect(profile, vctx, hour)

	return CheckResult{
		Method: MethodBehavior,
		Passed: len(anomalies) == 0,
		Details: map[string]any{
			"anomalies":             anomalies,
			"avg_requests_per_hour": profile.AvgRequestsPerHour,
			"requests_this_hour":    vctx.RequestsThisHour,
			"hour":                  hour,
			"history":               len(profile.UsagePatterns),
		},
	}
}

func (b *BehaviorAnalyzer) detect(profile *IdentityProfile, vctx ValidationContext, hour int) []string {
	anomalies := []string{}

	avg := profile.AvgRequestsPerHour
	if avg > 0 && float64(vctx.RequestsThisHour) > config.VolumeSpikeMultiplier*avg {
		anomalies = append(anomalies, AnomalyUnusualVolume)
	}

	if profile.HasHistory() && vctx.Address != "" {
		if _, seen := profile.TypicalAddresses[vctx.Address]; !seen {
			anomalies = append(anomalies, AnomalyNewAddress)
		}
	}

	if IsOffHours(hour) && profile.OffHoursEntries() < config.OffHoursBaseline {
		anomalies = append(anomalies, AnomalyOffHours)
	}

	return anomalies
}

// Record folds one validation into profile: counters, address set and the usage ring
func (b *BehaviorAnalyzer) Record(profile *IdentityProfile, vctx ValidationContext, risk RiskLevel) {
	now := b.now()
	hour := now.Hour()

	profile.TotalRequests++
	if vctx.Address != "" {
		profile.TypicalAddresses[vctx.Address] = struct{}{}
	}
	profile.RecordUsage(UsagePattern{
		Timestamp: now,
		Hour:      hour,
		OffHours:  IsOffHours(hour),
		RiskLevel: risk,
		Requests:  vctx.RequestsThisHour,
	}, b.maxPatterns, config.AverageWindow)
	profile.UpdatedAt = now
}
