package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"credguard/internal/license"
	"credguard/pkg/contracts"
)

// EngineChecker runs the engine component checks
type EngineChecker interface {
	PerformHealthCheck(ctx context.Context) *license.HealthCheckResult
}

// ClientCounter reports connected event stream clients
type ClientCounter interface {
	ClientCount() int
}

// FleetReporter exposes the latest fleet scan
type FleetReporter interface {
	LastStats() (license.FleetStats, bool)
}

// HealthService provides health check functionality
type HealthService struct {
	engine    EngineChecker
	hub       ClientCounter
	fleet     FleetReporter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                     `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Version   string                     `json:"version"`
	Engine    *license.HealthCheckResult `json:"engine,omitempty"`
	Runtime   map[string]any             `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth   `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. hub and fleet may be nil when those
// components are disabled.
func NewHealthService(engine EngineChecker, hub ClientCounter, fleet FleetReporter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		engine:    engine,
		hub:       hub,
		fleet:     fleet,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck runs the engine checks and maps them onto an HTTP friendly status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	result := hs.engine.PerformHealthCheck(ctx)

	status := HealthStatus{
		Status:    string(result.OverallStatus),
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Engine:    result,
	}

	level := slog.LevelDebug
	if result.OverallStatus != license.HealthStatusHealthy {
		level = slog.LevelWarn
	}
	hs.logger.Log(ctx, level, "health check completed",
		slog.String("status", status.Status),
		slog.String("message", result.Message))

	return status
}

// ReadinessCheck reports ready unless the engine is unhealthy. A degraded engine
// (open peer breakers) still serves requests.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	result := hs.engine.PerformHealthCheck(ctx)

	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"engine":    {Status: string(result.OverallStatus), Message: result.Message},
			"websocket": hs.checkWebSocket(),
			"fleet":     hs.checkFleet(),
		},
	}

	if result.OverallStatus == license.HealthStatusUnhealthy {
		status.Status = "not_ready"
	}
	return status
}

// IsReady is ReadinessCheck reduced to a boolean
func (s HealthStatus) IsReady() bool {
	return s.Status == "ready"
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]any{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns build and runtime information
func (hs *HealthService) Version() map[string]any {
	info := contracts.GetVersionInfo()
	return map[string]any{
		"version":      info.Version,
		"api_version":  info.APIVersion,
		"build_time":   info.BuildTime,
		"git_commit":   info.GitCommit,
		"go_version":   info.GoVersion,
		"os":           info.OS,
		"arch":         info.Architecture,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "disabled"}
	}
	return ServiceHealth{Status: "ready", Message: pluralClients(hs.hub.ClientCount())}
}

func (hs *HealthService) checkFleet() ServiceHealth {
	if hs.fleet == nil {
		return ServiceHealth{Status: "disabled"}
	}
	stats, ok := hs.fleet.LastStats()
	if !ok {
		return ServiceHealth{Status: "pending", Message: "no fleet scan yet"}
	}
	if n := stats.AnomalyCount(); n > 0 {
		return ServiceHealth{Status: "ready", Message: fmt.Sprintf("%d profiles flagged in last scan", n)}
	}
	return ServiceHealth{Status: "ready", Message: "last scan clean"}
}

func pluralClients(n int) string {
	if n == 1 {
		return "1 client connected"
	}
	return fmt.Sprintf("%d clients connected", n)
}
