package license

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		period   string
		expected time.Duration
	}{
		{"1h", time.Hour},
		{"12h", 12 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1m", 30 * 24 * time.Hour},
		{"3m", 90 * 24 * time.Hour},
		{"", 24 * time.Hour},
		{"0h", 24 * time.Hour},
		{"5w", 24 * time.Hour},
		{"h", 24 * time.Hour},
		{"-1d", 24 * time.Hour},
		{"1.5h", 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParsePeriod(tt.period))
		})
	}
}

func TestValidPeriod(t *testing.T) {
	for _, ok := range []string{"1h", "30d", "2m"} {
		assert.True(t, ValidPeriod(ok), ok)
	}
	for _, bad := range []string{"", "0d", "5w", "-1h", "1.5h", "h"} {
		assert.False(t, ValidPeriod(bad), bad)
	}
}

func TestAuditLogBoundAndOrder(t *testing.T) {
	log := NewAuditLog(3)

	for i := 0; i < 5; i++ {
		log.Append(AuditEvent{IdentityID: fmt.Sprintf("id-%d", i)})
	}

	require.Equal(t, 3, log.Len())
	events := log.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "id-2", events[0].IdentityID)
	assert.Equal(t, "id-3", events[1].IdentityID)
	assert.Equal(t, "id-4", events[2].IdentityID)
}

func TestAuditLogDefaultCapacity(t *testing.T) {
	log := NewAuditLog(1000)
	for i := 0; i < 1005; i++ {
		log.Append(AuditEvent{IdentityID: fmt.Sprintf("id-%d", i)})
	}

	assert.Equal(t, 1000, log.Len())
	assert.Equal(t, "id-5", log.Events()[0].IdentityID)
}

func TestAuditLogQuery(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	log := NewAuditLog(10)
	log.now = func() time.Time { return now }

	log.Append(AuditEvent{IdentityID: "old", Timestamp: now.Add(-48 * time.Hour)})
	log.Append(AuditEvent{IdentityID: "day", Timestamp: now.Add(-23 * time.Hour)})
	log.Append(AuditEvent{IdentityID: "edge", Timestamp: now.Add(-time.Hour)})
	log.Append(AuditEvent{IdentityID: "recent", Timestamp: now.Add(-time.Minute)})

	t.Run("hours", func(t *testing.T) {
		events := log.Query("1h")
		require.Len(t, events, 2)
		assert.Equal(t, "edge", events[0].IdentityID)
		assert.Equal(t, "recent", events[1].IdentityID)
	})

	t.Run("default window", func(t *testing.T) {
		assert.Len(t, log.Query("bogus"), 3)
	})

	t.Run("days", func(t *testing.T) {
		assert.Len(t, log.Query("7d"), 4)
	})
}
