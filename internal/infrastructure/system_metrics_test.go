package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeCollector(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	collector, err := NewRuntimeCollector(providers.Meter, 10*time.Millisecond)
	require.NoError(t, err)

	stats := collector.Collect(context.Background())
	assert.Greater(t, stats.GoRoutines, int64(0))
	assert.Greater(t, stats.CPUCount, 0)
	assert.False(t, stats.Timestamp.IsZero())

	done := make(chan struct{})
	go func() {
		collector.Start(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	collector.Stop()
	collector.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestReadRuntimeStats(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	stats := ReadRuntimeStats(start)
	assert.GreaterOrEqual(t, stats.Uptime, time.Minute)
}
