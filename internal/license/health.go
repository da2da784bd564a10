package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"credguard/internal/infrastructure"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health of a specific component
type ComponentHealth struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  string         `json:"duration,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HealthCheckResult contains the status of every engine component
type HealthCheckResult struct {
	OverallStatus HealthStatus                `json:"status"`
	Message       string                      `json:"message"`
	Timestamp     time.Time                   `json:"timestamp"`
	Duration      string                      `json:"duration"`
	TraceID       string                      `json:"trace_id"`
	Components    map[string]*ComponentHealth `json:"components"`
	Summary       *HealthSummary              `json:"summary"`
}

// HealthSummary provides aggregated health metrics
type HealthSummary struct {
	TotalComponents     int     `json:"total_components"`
	HealthyComponents   int     `json:"healthy_components"`
	DegradedComponents  int     `json:"degraded_components"`
	UnhealthyComponents int     `json:"unhealthy_components"`
	OverallScore        float64 `json:"overall_score"`
}

// Pinger is implemented by stores with a remote backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter is implemented by peer clients that guard nodes with circuit breakers
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// EngineHealthCheck reports the state of the engine's components
type EngineHealthCheck struct {
	manager  *Manager
	breakers BreakerReporter
	timeout  time.Duration
}

// NewEngineHealthCheck creates a health check. breakers may be nil.
func NewEngineHealthCheck(manager *Manager, breakers BreakerReporter, timeout time.Duration) *EngineHealthCheck {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EngineHealthCheck{manager: manager, breakers: breakers, timeout: timeout}
}

// PerformHealthCheck runs every component check
func (hc *EngineHealthCheck) PerformHealthCheck(ctx context.Context) *HealthCheckResult {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "engine.health_check",
		trace.WithAttributes(attribute.String("component", "engine_health")),
	)
	defer span.End()

	start := time.Now()
	result := &HealthCheckResult{
		Timestamp: start,
		TraceID:   infrastructure.TraceIDFromContext(ctx),
		Components: map[string]*ComponentHealth{
			"cache":         hc.checkCache(),
			"audit_log":     hc.checkAudit(),
			"profile_store": hc.checkProfileStore(ctx),
			"consensus":     hc.checkConsensus(),
			"event_bus":     hc.checkEventBus(),
		},
	}

	result.Summary = calculateHealthSummary(result.Components)
	result.OverallStatus = determineOverallStatus(result.Components)
	result.Duration = time.Since(start).String()
	result.Message = generateStatusMessage(result.OverallStatus, result.Summary)

	span.SetAttributes(
		attribute.String("health.overall_status", string(result.OverallStatus)),
		attribute.Int("health.total_components", result.Summary.TotalComponents),
		attribute.Float64("health.overall_score", result.Summary.OverallScore),
	)
	return result
}

func (hc *EngineHealthCheck) checkCache() *ComponentHealth {
	stats := hc.manager.cache.Stats()
	return &ComponentHealth{
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("%d cached outcomes", stats.Entries),
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"entries":     stats.Entries,
			"hits":        stats.Hits,
			"misses":      stats.Misses,
			"hit_ratio":   stats.HitRatio,
			"ttl_seconds": stats.TTL,
		},
	}
}

func (hc *EngineHealthCheck) checkAudit() *ComponentHealth {
	audit := hc.manager.audit
	return &ComponentHealth{
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("%d of %d audit events retained", audit.Len(), audit.Capacity()),
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"events":   audit.Len(),
			"capacity": audit.Capacity(),
		},
	}
}

func (hc *EngineHealthCheck) checkProfileStore(ctx context.Context) *ComponentHealth {
	start := time.Now()
	health := &ComponentHealth{Timestamp: start, Metadata: make(map[string]any)}

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	if p, ok := hc.manager.profiles.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = "Profile store unreachable"
			health.Error = err.Error()
			health.Duration = time.Since(start).String()
			return health
		}
	}

	count, err := hc.manager.profiles.Count(ctx)
	health.Duration = time.Since(start).String()
	if err != nil {
		health.Status = HealthStatusDegraded
		health.Message = "Profile count unavailable"
		health.Error = err.Error()
		return health
	}

	health.Status = HealthStatusHealthy
	health.Message = fmt.Sprintf("%d identity profiles", count)
	health.Metadata["profiles"] = count
	return health
}

func (hc *EngineHealthCheck) checkConsensus() *ComponentHealth {
	nodes := hc.manager.PeerNodes()
	health := &ComponentHealth{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"nodes":     len(nodes),
			"threshold": QuorumThreshold(len(nodes)),
		},
	}
	if len(nodes) == 0 {
		health.Message = "Single node mode"
		return health
	}

	open := 0
	if hc.breakers != nil {
		states := hc.breakers.BreakerStates()
		health.Metadata["breakers"] = states
		for _, s := range states {
			if s == "open" {
				open++
			}
		}
	}

	switch {
	case len(nodes)-open < QuorumThreshold(len(nodes)):
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("Quorum unreachable: %d of %d breakers open", open, len(nodes))
	case open > 0:
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("%d of %d peer breakers open", open, len(nodes))
	default:
		health.Message = fmt.Sprintf("%d peer nodes", len(nodes))
	}
	return health
}

func (hc *EngineHealthCheck) checkEventBus() *ComponentHealth {
	subscribers := hc.manager.events.Subscribers()
	return &ComponentHealth{
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("%d subscribers", subscribers),
		Timestamp: time.Now(),
		Metadata:  map[string]any{"subscribers": subscribers},
	}
}

// calculateHealthSummary computes aggregate health metrics
func calculateHealthSummary(components map[string]*ComponentHealth) *HealthSummary {
	summary := &HealthSummary{TotalComponents: len(components)}

	for _, health := range components {
		switch health.Status {
		case HealthStatusHealthy:
			summary.HealthyComponents++
		case HealthStatusDegraded:
			summary.DegradedComponents++
		case HealthStatusUnhealthy:
			summary.UnhealthyComponents++
		}
	}

	// healthy=1.0, degraded=0.5, unhealthy=0.0
	if summary.TotalComponents > 0 {
		score := float64(summary.HealthyComponents) + (float64(summary.DegradedComponents) * 0.5)
		summary.OverallScore = score / float64(summary.TotalComponents)
	}

	return summary
}

func determineOverallStatus(components map[string]*ComponentHealth) HealthStatus {
	hasDegraded := false
	for _, health := range components {
		switch health.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func generateStatusMessage(status HealthStatus, summary *HealthSummary) string {
	switch status {
	case HealthStatusHealthy:
		return fmt.Sprintf("All %d engine components are healthy", summary.TotalComponents)
	case HealthStatusDegraded:
		return fmt.Sprintf("Engine operational with %d degraded components out of %d",
			summary.DegradedComponents, summary.TotalComponents)
	case HealthStatusUnhealthy:
		return fmt.Sprintf("Engine unhealthy: %d unhealthy, %d degraded out of %d components",
			summary.UnhealthyComponents, summary.DegradedComponents, summary.TotalComponents)
	default:
		return "Unknown health status"
	}
}
