package license

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"credguard/internal/config"
)

// Fleet-wide thresholds. They mirror the per-request anomaly features applied to the
// long-run profile instead of a single request.
const (
	fleetVolumeMultiplier = 3.0
	fleetOffHoursRatio    = 0.8
	fleetMaxAddresses     = 10
)

// FleetStats summarises one scan of every identity profile
type FleetStats struct {
	Profiles              int       `json:"profiles"`
	HighVolumeProfiles    []string  `json:"high_volume_profiles"`
	OffHoursHeavyProfiles []string  `json:"off_hours_heavy_profiles"`
	MultiAddressProfiles  []string  `json:"multi_address_profiles"`
	AvgRequests           float64   `json:"avg_requests_per_hour"`
	ScannedAt             time.Time `json:"scanned_at"`
}

// AnomalyCount is the number of flagged profiles across all categories
func (s FleetStats) AnomalyCount() int {
	return len(s.HighVolumeProfiles) + len(s.OffHoursHeavyProfiles) + len(s.MultiAddressProfiles)
}

// ComputeFleetStats classifies profiles. An identity is high volume when its average
// exceeds three times the fleet mean of active identities.
func ComputeFleetStats(profiles []*IdentityProfile, now time.Time) FleetStats {
	stats := FleetStats{Profiles: len(profiles), ScannedAt: now}

	var sum float64
	active := 0
	for _, p := range profiles {
		if p.AvgRequestsPerHour > 0 {
			sum += p.AvgRequestsPerHour
			active++
		}
	}
	if active > 0 {
		stats.AvgRequests = sum / float64(active)
	}

	for _, p := range profiles {
		if active > 1 && p.AvgRequestsPerHour > stats.AvgRequests*fleetVolumeMultiplier {
			stats.HighVolumeProfiles = append(stats.HighVolumeProfiles, p.IdentityID)
		}
		if n := len(p.UsagePatterns); n >= config.OffHoursBaseline &&
			float64(p.OffHoursEntries())/float64(n) > fleetOffHoursRatio {
			stats.OffHoursHeavyProfiles = append(stats.OffHoursHeavyProfiles, p.IdentityID)
		}
		if len(p.TypicalAddresses) > fleetMaxAddresses {
			stats.MultiAddressProfiles = append(stats.MultiAddressProfiles, p.IdentityID)
		}
	}
	return stats
}

// FleetMonitor periodically scans the profile store
type FleetMonitor struct {
	store    ProfileStore
	events   *EventBus
	metrics  *ValidationMetrics
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	last *FleetStats

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewFleetMonitor creates a monitor over the manager's store and event bus
func NewFleetMonitor(m *Manager, interval time.Duration) *FleetMonitor {
	if interval <= 0 {
		interval = config.FleetScanInterval
	}
	return &FleetMonitor{
		store:    m.profiles,
		events:   m.events,
		metrics:  m.metrics,
		logger:   m.logger,
		interval: interval,
		now:      m.now,
		stopCh:   make(chan struct{}),
	}
}

// Scan takes a snapshot, computes stats and publishes fleet.anomaly when anything is flagged
func (f *FleetMonitor) Scan(ctx context.Context) (FleetStats, error) {
	profiles, err := f.store.Snapshot(ctx)
	if err != nil {
		f.logger.ErrorContext(ctx, "fleet scan failed",
			slog.String("component", "fleet_monitor"),
			slog.String("error", err.Error()))
		return FleetStats{}, err
	}

	stats := ComputeFleetStats(profiles, f.now())

	f.mu.Lock()
	f.last = &stats
	f.mu.Unlock()

	f.metrics.RecordFleetScan(ctx, stats)
	f.logger.InfoContext(ctx, "fleet scan completed",
		slog.String("component", "fleet_monitor"),
		slog.Int("profiles", stats.Profiles),
		slog.Int("anomalies", stats.AnomalyCount()),
		slog.Float64("avg_requests_per_hour", stats.AvgRequests),
	)

	if stats.AnomalyCount() > 0 {
		f.events.Publish(Event{Type: EventFleetAnomaly, Timestamp: stats.ScannedAt, Data: stats})
	}
	return stats, nil
}

// LastStats returns the most recent scan result
func (f *FleetMonitor) LastStats() (FleetStats, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return FleetStats{}, false
	}
	return *f.last, true
}

// Start blocks, scanning every interval until Stop or ctx is done.
func (f *FleetMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = f.Scan(ctx)
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends scanning. Safe to call more than once.
func (f *FleetMonitor) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}
