package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"credguard/internal/license"
	"credguard/internal/shared/testutil"
	"credguard/pkg/contracts"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) PerformHealthCheck(ctx context.Context) *license.HealthCheckResult {
	args := m.Called(ctx)
	return args.Get(0).(*license.HealthCheckResult)
}

type mockHub struct {
	mock.Mock
}

func (m *mockHub) ClientCount() int {
	return m.Called().Int(0)
}

type mockFleet struct {
	mock.Mock
}

func (m *mockFleet) LastStats() (license.FleetStats, bool) {
	args := m.Called()
	return args.Get(0).(license.FleetStats), args.Bool(1)
}

func engineResult(status license.HealthStatus, message string) *license.HealthCheckResult {
	return &license.HealthCheckResult{OverallStatus: status, Message: message}
}

func TestHealthCheck(t *testing.T) {
	engine := new(mockEngine)
	engine.On("PerformHealthCheck", mock.Anything).
		Return(engineResult(license.HealthStatusDegraded, "peer breaker open")).Once()

	logger, handler := testutil.NewTestLogger(t)
	hs := NewHealthService(engine, nil, nil, logger)

	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, contracts.Version, status.Version)
	assert.Equal(t, "peer breaker open", status.Engine.Message)
	assert.True(t, handler.ContainsMessage("health check completed"))
	engine.AssertExpectations(t)
}

func TestReadinessCheck(t *testing.T) {
	tests := []struct {
		name   string
		status license.HealthStatus
		ready  bool
	}{
		{"healthy", license.HealthStatusHealthy, true},
		{"degraded still serves", license.HealthStatusDegraded, true},
		{"unhealthy", license.HealthStatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(mockEngine)
			engine.On("PerformHealthCheck", mock.Anything).Return(engineResult(tt.status, ""))
			hub := new(mockHub)
			hub.On("ClientCount").Return(2)
			fleet := new(mockFleet)
			fleet.On("LastStats").Return(license.FleetStats{
				Profiles:           3,
				HighVolumeProfiles: []string{"user-9"},
				ScannedAt:          time.Now(),
			}, true)

			hs := NewHealthService(engine, hub, fleet, nil)
			status := hs.ReadinessCheck(context.Background())

			assert.Equal(t, tt.ready, status.IsReady())
			assert.Equal(t, string(tt.status), status.Services["engine"].Status)
			assert.Equal(t, "2 clients connected", status.Services["websocket"].Message)
			assert.Equal(t, "1 profiles flagged in last scan", status.Services["fleet"].Message)
			hub.AssertExpectations(t)
			fleet.AssertExpectations(t)
		})
	}
}

func TestReadinessOptionalComponents(t *testing.T) {
	engine := new(mockEngine)
	engine.On("PerformHealthCheck", mock.Anything).Return(engineResult(license.HealthStatusHealthy, ""))

	hs := NewHealthService(engine, nil, nil, nil)
	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "disabled", status.Services["websocket"].Status)
	assert.Equal(t, "disabled", status.Services["fleet"].Status)

	fleet := new(mockFleet)
	fleet.On("LastStats").Return(license.FleetStats{}, false)
	hub := new(mockHub)
	hub.On("ClientCount").Return(1)

	hs = NewHealthService(engine, hub, fleet, nil)
	status = hs.ReadinessCheck(context.Background())
	assert.Equal(t, "pending", status.Services["fleet"].Status)
	assert.Equal(t, "1 client connected", status.Services["websocket"].Message)
}

func TestLivenessAndVersion(t *testing.T) {
	hs := NewHealthService(new(mockEngine), nil, nil, nil)

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Contains(t, live.Runtime, "goroutines")

	version := hs.Version()
	assert.Equal(t, contracts.Version, version["version"])
	assert.Equal(t, contracts.APIVersion, version["api_version"])
}
