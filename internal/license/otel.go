package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "credguard/internal/errors"
)

const (
	TracerName = "credguard-engine"
	MeterName  = "credguard-engine"
)

// ValidationMetrics holds the engine's OpenTelemetry instruments
type ValidationMetrics struct {
	// Validation metrics
	ValidationAttempts metric.Int64Counter
	ValidationSuccess  metric.Int64Counter
	ValidationFailures metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	SecurityScore      metric.Int64Histogram

	// Per-check metrics
	CheckFailures metric.Int64Counter
	CheckDuration metric.Float64Histogram

	// Cache metrics
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	CacheEvictions metric.Int64Counter

	// Consensus metrics
	PeerVotes    metric.Int64Counter
	PeerNonVotes metric.Int64Counter

	// Administrative and fleet metrics
	AdminEvents     metric.Int64Counter
	FleetAnomalies  metric.Int64Counter
	ProfilesTracked metric.Int64Gauge
}

// InitializeValidationMetrics creates all engine metrics on meter
func InitializeValidationMetrics(meter metric.Meter) (*ValidationMetrics, error) {
	m := &ValidationMetrics{}
	var err error

	if m.ValidationAttempts, err = meter.Int64Counter(
		"credguard_validation_attempts_total",
		metric.WithDescription("Total number of credential validations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation attempts counter: %w", err)
	}

	if m.ValidationSuccess, err = meter.Int64Counter(
		"credguard_validation_success_total",
		metric.WithDescription("Total number of validations that ended valid"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation success counter: %w", err)
	}

	if m.ValidationFailures, err = meter.Int64Counter(
		"credguard_validation_failures_total",
		metric.WithDescription("Total number of validations that ended invalid"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation failures counter: %w", err)
	}

	if m.ValidationDuration, err = meter.Float64Histogram(
		"credguard_validation_duration_seconds",
		metric.WithDescription("End-to-end validation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	if m.SecurityScore, err = meter.Int64Histogram(
		"credguard_security_score",
		metric.WithDescription("Distribution of security scores"),
	); err != nil {
		return nil, fmt.Errorf("failed to create security score histogram: %w", err)
	}

	if m.CheckFailures, err = meter.Int64Counter(
		"credguard_check_failures_total",
		metric.WithDescription("Failed checks by method"),
	); err != nil {
		return nil, fmt.Errorf("failed to create check failures counter: %w", err)
	}

	if m.CheckDuration, err = meter.Float64Histogram(
		"credguard_check_duration_seconds",
		metric.WithDescription("Duration of individual checks in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create check duration histogram: %w", err)
	}

	if m.CacheHits, err = meter.Int64Counter(
		"credguard_cache_hits_total",
		metric.WithDescription("Validation cache hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	if m.CacheMisses, err = meter.Int64Counter(
		"credguard_cache_misses_total",
		metric.WithDescription("Validation cache misses"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	if m.CacheEvictions, err = meter.Int64Counter(
		"credguard_cache_invalidations_total",
		metric.WithDescription("Cache entries removed by revocation"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache invalidations counter: %w", err)
	}

	if m.PeerVotes, err = meter.Int64Counter(
		"credguard_peer_votes_total",
		metric.WithDescription("Positive votes received from peer nodes"),
	); err != nil {
		return nil, fmt.Errorf("failed to create peer votes counter: %w", err)
	}

	if m.PeerNonVotes, err = meter.Int64Counter(
		"credguard_peer_non_votes_total",
		metric.WithDescription("Peer queries that errored or timed out"),
	); err != nil {
		return nil, fmt.Errorf("failed to create peer non-votes counter: %w", err)
	}

	if m.AdminEvents, err = meter.Int64Counter(
		"credguard_admin_events_total",
		metric.WithDescription("Emergency overrides and revocations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create admin events counter: %w", err)
	}

	if m.FleetAnomalies, err = meter.Int64Counter(
		"credguard_fleet_anomalies_total",
		metric.WithDescription("Anomalous profiles found by fleet scans"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet anomalies counter: %w", err)
	}

	if m.ProfilesTracked, err = meter.Int64Gauge(
		"credguard_profiles_tracked",
		metric.WithDescription("Identity profiles seen by the last fleet scan"),
	); err != nil {
		return nil, fmt.Errorf("failed to create profiles gauge: %w", err)
	}

	return m, nil
}

// RecordValidation records one finished validation
func (m *ValidationMetrics) RecordValidation(ctx context.Context, outcome *ValidationOutcome, duration time.Duration) {
	if m == nil || outcome == nil {
		return
	}

	labels := metric.WithAttributes(
		attribute.String("risk_level", string(outcome.RiskLevel)),
	)

	m.ValidationAttempts.Add(ctx, 1, labels)
	m.ValidationDuration.Record(ctx, duration.Seconds(), labels)
	m.SecurityScore.Record(ctx, int64(outcome.SecurityScore), labels)
	if outcome.Valid {
		m.ValidationSuccess.Add(ctx, 1, labels)
	} else {
		m.ValidationFailures.Add(ctx, 1, labels)
	}
}

// RecordCheck records one check's duration and failure
func (m *ValidationMetrics) RecordCheck(ctx context.Context, result CheckResult, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(attribute.String("method", string(result.Method)))
	m.CheckDuration.Record(ctx, duration.Seconds(), labels)
	if !result.Passed {
		m.CheckFailures.Add(ctx, 1, labels)
	}
}

// RecordCacheLookup counts a hit or a miss
func (m *ValidationMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
	} else {
		m.CacheMisses.Add(ctx, 1)
	}
}

// RecordCacheInvalidation counts an entry removed by revocation
func (m *ValidationMetrics) RecordCacheInvalidation(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheEvictions.Add(ctx, 1)
}

// RecordPeerVotes records the tally of one quorum
func (m *ValidationMetrics) RecordPeerVotes(ctx context.Context, votes, nonVotes int) {
	if m == nil {
		return
	}
	m.PeerVotes.Add(ctx, int64(votes))
	m.PeerNonVotes.Add(ctx, int64(nonVotes))
}

// RecordAdminEvent counts an override or revocation
func (m *ValidationMetrics) RecordAdminEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.AdminEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFleetScan records the result of one fleet scan
func (m *ValidationMetrics) RecordFleetScan(ctx context.Context, stats FleetStats) {
	if m == nil {
		return
	}
	m.ProfilesTracked.Record(ctx, int64(stats.Profiles))
	m.FleetAnomalies.Add(ctx, int64(stats.AnomalyCount()))
}

// TraceValidation wraps a validation with a span and records its metrics
func (m *Manager) TraceValidation(ctx context.Context, identityID string, fn func(context.Context) (*ValidationOutcome, error)) (*ValidationOutcome, error) {
	tracer := otel.Tracer(TracerName)

	ctx, span := tracer.Start(ctx, "credential.validation",
		trace.WithAttributes(
			attribute.String("credential.operation", "validation"),
			attribute.String("identity.id", identityID),
			attribute.String("component", "validation_engine"),
		),
	)
	defer span.End()

	start := time.Now()
	outcome, err := fn(ctx)
	duration := time.Since(start)

	m.metrics.RecordValidation(ctx, outcome, duration)

	span.SetAttributes(attribute.Float64("credential.duration_ms", float64(duration.Milliseconds())))
	if outcome != nil {
		span.SetAttributes(
			attribute.Bool("credential.valid", outcome.Valid),
			attribute.Int("credential.security_score", outcome.SecurityScore),
			attribute.String("credential.risk_level", string(outcome.RiskLevel)),
		)
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("credential.error_type", classifyValidationError(err)))
	case outcome != nil && !outcome.Valid:
		span.SetStatus(codes.Error, "credential rejected")
	default:
		span.SetStatus(codes.Ok, "credential accepted")
	}

	return outcome, err
}

// traceCheck runs one check inside a child span. Panics become a failed result.
func (m *Manager) traceCheck(ctx context.Context, method Method, fn func(context.Context) CheckResult) (result CheckResult) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "check."+string(method),
		trace.WithAttributes(attribute.String("check.method", string(method))),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := apperrors.NewCheckExecutionError(string(method), fmt.Errorf("panic: %v", r))
			result = failedResult(method, err)
			span.RecordError(err)
		}
		if result.Method == "" {
			result.Method = method
		}

		m.metrics.RecordCheck(ctx, result, time.Since(start))
		span.SetAttributes(attribute.Bool("check.passed", result.Passed))
		if !result.Passed {
			span.SetStatus(codes.Error, "check failed")
		}
		span.End()
	}()

	return fn(ctx)
}

// classifyValidationError categorizes errors for span attributes
func classifyValidationError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperrors.ErrCredentialExpired):
		return "credential_expired"
	case errors.Is(err, apperrors.ErrCredentialMalformed):
		return "credential_malformed"
	case errors.Is(err, apperrors.ErrCredentialInvalid):
		return "credential_invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown_error"
	}
}
