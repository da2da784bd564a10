package config

import "time"

// Application constants
const (
	AppName    = "credguard"
	AppVersion = "1.0.0"

	// Cache Settings
	ValidationCacheDuration = 5 * time.Minute

	// Engine bounds
	AuditHistoryCapacity = 1000
	UsagePatternCapacity = 100
	AverageWindow        = 24 // most recent usage entries used for avg requests/hour

	// Thresholds
	MaxTravelDistanceKm      = 1000.0
	MinFingerprintSimilarity = 0.8
	VolumeSpikeMultiplier    = 3.0
	OffHoursStart            = 6  // hours before this are off-hours
	OffHoursEnd              = 22 // hours after this are off-hours
	OffHoursBaseline         = 5  // historical off-hours entries that make off-hours normal

	// Timeouts
	ValidationDeadline = 10 * time.Second
	PeerQueryTimeout   = 5 * time.Second
	FleetScanInterval  = time.Minute

	// Fingerprint similarity strategies
	SimilarityExact   = "exact"
	SimilarityJaccard = "jaccard"

	// Profile store backends
	ProfileStoreMemory = "memory"
	ProfileStoreRedis  = "redis"

	// API Endpoints
	APIBasePath       = "/api/v1"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
	PeerVerifyPath    = "/api/v1/peer/verify"
)
