// Package license implements the credguard validation engine. A credential is first
// checked by a BasicValidator (signature, expiry) and, when that passes, scored by
// independent signals run concurrently:
//
//   - Consensus: a quorum of peer nodes must vote the credential valid
//   - Blockchain: a feature-flagged check against the revocation ledger
//   - Behavior: request volume, addresses and hours against the identity profile
//   - Geolocation: distance from the identity's first seen location
//   - Fingerprint: device similarity to the first seen device
//   - Anomaly: a pluggable Scorer over request features
//
// # Scoring
//
// The security score starts at 100 and each failed check deducts its weight
// (consensus 20, blockchain 15, behavior 25, geolocation 10, fingerprint 20,
// anomaly 30). The risk level follows from the number of failures:
//
//	0     low
//	1-2   medium
//	3-4   high
//	5+    critical
//
// A credential is valid only when every check passes.
//
// # State
//
// Identity profiles live behind ProfileStore (memory or Redis). Valid outcomes are
// cached for a TTL, every validation is appended to a bounded AuditLog, and
// validation, override, revocation and fleet events are published on the EventBus.
//
// # Usage
//
//	mgr, err := license.NewManager(cfg.Validation, license.NewTokenValidator(secret, issuer),
//		license.NewMemoryProfileStore(), resolver, peers)
//	outcome, err := mgr.Validate(ctx, credential, license.ValidationContext{
//		IdentityID:       "user-1",
//		Address:          "203.0.113.7",
//		RequestsThisHour: 12,
//	})
package license
