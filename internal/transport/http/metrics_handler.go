package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"credguard/internal/license"
	"credguard/internal/services"
	ws "credguard/internal/websocket"
)

// StatsSource exposes the engine's runtime counters
type StatsSource interface {
	Cache() *license.ValidationCache
	Audit() *license.AuditLog
	PeerNodes() []string
}

// HubStatsSource reports event stream counters
type HubStatsSource interface {
	Stats() ws.HubStats
}

// EngineStats is the GET /api/v1/stats response
type EngineStats struct {
	Cache         license.CacheStats  `json:"cache"`
	AuditEvents   int                 `json:"audit_events"`
	AuditCapacity int                 `json:"audit_capacity"`
	PeerNodes     []string            `json:"peer_nodes"`
	Stream        *ws.HubStats        `json:"stream,omitempty"`
	Fleet         *license.FleetStats `json:"fleet,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// MetricsHandler serves a JSON snapshot of engine counters. Prometheus metrics are
// served separately on /metrics.
type MetricsHandler struct {
	engine StatsSource
	hub    HubStatsSource
	fleet  services.FleetReporter
}

// NewMetricsHandler creates a new metrics handler. hub and fleet may be nil.
func NewMetricsHandler(engine StatsSource, hub HubStatsSource, fleet services.FleetReporter) *MetricsHandler {
	return &MetricsHandler{engine: engine, hub: hub, fleet: fleet}
}

// GetStats handles GET /api/v1/stats
func (h *MetricsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	audit := h.engine.Audit()
	stats := EngineStats{
		Cache:         h.engine.Cache().Stats(),
		AuditEvents:   audit.Len(),
		AuditCapacity: audit.Capacity(),
		PeerNodes:     h.engine.PeerNodes(),
		Timestamp:     time.Now().UTC(),
	}
	if stats.PeerNodes == nil {
		stats.PeerNodes = []string{}
	}
	if h.hub != nil {
		s := h.hub.Stats()
		stats.Stream = &s
	}
	if h.fleet != nil {
		if f, ok := h.fleet.LastStats(); ok {
			stats.Fleet = &f
		}
	}
	render.JSON(w, r, stats)
}
