// Package http contains the HTTP handlers of the credguard API.
//
// Handlers decode the v1 contracts from pkg/contracts/api/v1, validate them with
// the struct tag validator from internal/middleware and delegate to a service
// interface. Errors are written as RFC 7807 problem documents by
// errors.ErrorHandler.
//
// Endpoints:
//
//	POST /api/v1/validate              full multi-signal validation
//	POST /api/v1/validate/cached       cached outcome lookup, no revalidation
//	GET  /api/v1/analytics?period=24h  audit history summary
//	GET  /api/v1/profiles/{id}         identity behavior profile
//	GET  /api/v1/stats                 cache, audit, stream and fleet counters
//	POST /api/v1/peer/verify           consensus vote for another node
//	POST /api/v1/admin/override        record an emergency override request
//	POST /api/v1/admin/revoke          revoke a credential hash
//	GET  /api/v1/admin/overrides       list override requests
//	GET  /api/v1/admin/revocations     list revocations
//	GET  /api/health[/ready|/live]     health probes
//
// A credential that parses but fails a check is still a 200 response carrying
// valid=false. Only malformed requests are rejected with 400.
package http
