// Package app wires the credguard node together and manages its lifecycle.
//
// NewApplication loads configuration, initializes logging and OpenTelemetry, then
// builds the validation engine with its profile store, geolocation resolver and
// consensus peer client. The engine's event bus is bridged onto the websocket hub,
// and the fleet monitor and runtime collector run in the background once Start
// is called.
//
// Routes:
//
//	/api/health/*          health, readiness, liveness and version
//	/api/v1/validate       multi-signal validation
//	/api/v1/peer/verify    consensus votes for other nodes
//	/api/v1/admin/*        overrides and revocations (bearer token)
//	/ws                    validation event stream
//	/metrics               Prometheus exposition
//
// Run blocks until SIGINT or SIGTERM and then shuts down in reverse order.
package app
