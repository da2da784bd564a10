package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBreakers map[string]string

func (s staticBreakers) BreakerStates() map[string]string { return s }

func TestEngineHealthCheckHealthy(t *testing.T) {
	m, err := NewManager(testValidationConfig(), NewTokenValidator("secret", ""), nil, nil, nil,
		WithLogger(quietLogger(t)))
	require.NoError(t, err)

	result := NewEngineHealthCheck(m, nil, 0).PerformHealthCheck(context.Background())

	assert.Equal(t, HealthStatusHealthy, result.OverallStatus)
	assert.Len(t, result.Components, 5)
	assert.Equal(t, 5, result.Summary.HealthyComponents)
	assert.Equal(t, 1.0, result.Summary.OverallScore)
	assert.Equal(t, "Single node mode", result.Components["consensus"].Message)
	assert.Equal(t, 0, result.Components["profile_store"].Metadata["profiles"])
}

func TestEngineHealthCheckBreakers(t *testing.T) {
	cfg := testValidationConfig()
	cfg.PeerNodes = []string{"node-a", "node-b", "node-c"}
	peers := votingClient(map[string]bool{"node-a": true}, nil)

	m, err := NewManager(cfg, NewTokenValidator("secret", ""), nil, nil, peers, WithLogger(quietLogger(t)))
	require.NoError(t, err)

	tests := []struct {
		name    string
		states  staticBreakers
		status  HealthStatus
		message string
	}{
		{"all closed", staticBreakers{"node-a": "closed", "node-b": "closed", "node-c": "closed"}, HealthStatusHealthy, "3 peer nodes"},
		{"one open", staticBreakers{"node-a": "open", "node-b": "closed", "node-c": "closed"}, HealthStatusDegraded, "1 of 3 peer breakers open"},
		{"quorum lost", staticBreakers{"node-a": "open", "node-b": "open", "node-c": "closed"}, HealthStatusDegraded, "Quorum unreachable: 2 of 3 breakers open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewEngineHealthCheck(m, tt.states, time.Second).PerformHealthCheck(context.Background())
			consensus := result.Components["consensus"]
			assert.Equal(t, tt.status, consensus.Status)
			assert.Equal(t, tt.message, consensus.Message)
			assert.Equal(t, tt.status, result.OverallStatus)
		})
	}
}

func TestEngineHealthCheckRedisDown(t *testing.T) {
	store, mr := newRedisStore(t)
	m, err := NewManager(testValidationConfig(), NewTokenValidator("secret", ""), store, nil, nil,
		WithLogger(quietLogger(t)))
	require.NoError(t, err)

	hc := NewEngineHealthCheck(m, nil, time.Second)
	assert.Equal(t, HealthStatusHealthy, hc.PerformHealthCheck(context.Background()).OverallStatus)

	mr.Close()
	result := hc.PerformHealthCheck(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, result.OverallStatus)
	assert.Equal(t, HealthStatusUnhealthy, result.Components["profile_store"].Status)
	assert.NotEmpty(t, result.Components["profile_store"].Error)
	assert.Equal(t, 1, result.Summary.UnhealthyComponents)
}
