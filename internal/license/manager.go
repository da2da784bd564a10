package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"credguard/internal/config"
	apperrors "credguard/internal/errors"
	"credguard/internal/infrastructure"
	"credguard/internal/security"
)

// Manager is the validation orchestrator. It runs the basic credential check, fans out
// to the five signals, scores the result and keeps the profile, cache and audit state.
type Manager struct {
	cfg config.ValidationConfig

	basic       BasicValidator
	profiles    ProfileStore
	consensus   *ConsensusValidator
	geo         *GeoConsistencyChecker
	behavior    *BehaviorAnalyzer
	fingerprint *DeviceFingerprintValidator
	anomaly     *AnomalyScorer
	cache       *ValidationCache
	audit       *AuditLog
	events      *EventBus

	logger  *slog.Logger
	metrics *ValidationMetrics
	now     func() time.Time
	nodeID  string

	scorer     Scorer
	similarity Similarity
	collect    func() security.DeviceAttributes

	adminMu     sync.RWMutex
	overrides   []OverrideRecord
	revocations []RevocationRecord
	revoked     map[string]struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger. Defaults to the global infrastructure logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now for every time-dependent decision
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics attaches OpenTelemetry instruments
func WithMetrics(metrics *ValidationMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithScorer replaces the heuristic anomaly scorer
func WithScorer(scorer Scorer) Option {
	return func(m *Manager) { m.scorer = scorer }
}

// WithSimilarity replaces the fingerprint similarity selected by config
func WithSimilarity(similarity Similarity) Option {
	return func(m *Manager) { m.similarity = similarity }
}

// WithDeviceCollector supplies device attributes for requests that carry none
func WithDeviceCollector(collect func() security.DeviceAttributes) Option {
	return func(m *Manager) { m.collect = collect }
}

// WithEventBus shares an existing bus
func WithEventBus(bus *EventBus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.events = bus
		}
	}
}

// WithNodeID names this node in peer votes
func WithNodeID(id string) Option {
	return func(m *Manager) { m.nodeID = id }
}

// NewManager wires the engine. peers may be nil when cfg has no peer nodes; resolver nil
// disables geolocation (the check then fails open).
func NewManager(cfg config.ValidationConfig, basic BasicValidator, profiles ProfileStore, resolver GeoResolver, peers PeerClient, opts ...Option) (*Manager, error) {
	if basic == nil {
		return nil, apperrors.NewConfigError("basic validator is required", nil)
	}
	if profiles == nil {
		profiles = NewMemoryProfileStore()
	}
	if resolver == nil {
		resolver = NoopResolver{}
	}
	if len(cfg.PeerNodes) > 0 && peers == nil {
		return nil, apperrors.NewConfigError("peer nodes configured without a peer client", nil)
	}

	cfg = withDefaults(cfg)
	m := &Manager{
		cfg:      cfg,
		basic:    basic,
		profiles: profiles,
		events:   NewEventBus(),
		logger:   infrastructure.GetLogger(),
		now:      time.Now,
		nodeID:   config.AppName,
		revoked:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.similarity == nil {
		sim, err := SimilarityByName(cfg.FingerprintSim)
		if err != nil {
			return nil, apperrors.NewConfigError("fingerprint similarity", err)
		}
		m.similarity = sim
	}

	m.consensus = NewConsensusValidator(cfg.PeerNodes, peers, cfg.PeerTimeout)
	m.consensus.metrics = m.metrics
	m.geo = NewGeoConsistencyChecker(resolver, profiles, cfg.MaxGeoDistanceKm)
	m.behavior = NewBehaviorAnalyzer(profiles, cfg.MaxUsagePatterns, m.now)
	m.fingerprint = NewDeviceFingerprintValidator(profiles, m.similarity, cfg.MinFingerprintSim, m.collect)
	m.anomaly = NewAnomalyScorer(m.scorer, m.now)

	m.cache = NewValidationCache(cfg.CacheTTL, 0)
	m.cache.now = m.now
	m.audit = NewAuditLog(cfg.AuditCapacity)
	m.audit.now = m.now

	return m, nil
}

// Validate runs the full pipeline for credential. Only a deadline or cancellation of
// ctx is returned as an error; credential problems are reported in the outcome.
func (m *Manager) Validate(ctx context.Context, credential string, vctx ValidationContext) (*ValidationOutcome, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	if vctx.IdentityID != "" {
		ctx = infrastructure.WithIdentity(ctx, vctx.IdentityID)
	}
	if m.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Deadline)
		defer cancel()
	}

	return m.TraceValidation(ctx, vctx.IdentityID, func(ctx context.Context) (*ValidationOutcome, error) {
		return m.validate(ctx, credential, vctx)
	})
}

func (m *Manager) validate(ctx context.Context, credential string, vctx ValidationContext) (*ValidationOutcome, error) {
	start := time.Now()

	basic, err := m.basic.Validate(ctx, credential)
	if err != nil || !basic.Valid {
		outcome := rejectedOutcome(basic, err)
		outcome.ValidationTimeMs = time.Since(start).Milliseconds()
		m.logCredentialAction(ctx, slog.LevelWarn, "validation", "credential rejected", credential,
			slog.String("reason", outcome.Error))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		return outcome, nil
	}

	if vctx.IdentityID == "" {
		vctx.IdentityID = basic.Subject
	}
	identityID := vctx.IdentityID
	if identityID == "" {
		identityID = HashCredential(credential)
	}

	checks := m.runChecks(ctx, credential, identityID, vctx)
	score, level := Aggregate(checks)

	outcome := &ValidationOutcome{
		Valid:         allPassed(checks),
		SecurityScore: score,
		RiskLevel:     level,
		Checks:        checks,
		Tier:          basic.Tier,
		Features:      basic.Features,
	}

	if err := ctx.Err(); err != nil {
		outcome.Valid = false
		outcome.Error = "validation deadline exceeded"
		outcome.ValidationTimeMs = time.Since(start).Milliseconds()
		m.logCredentialAction(ctx, slog.LevelError, "validation", "validation aborted", credential,
			slog.String("error", err.Error()))
		return outcome, err
	}

	if outcome.Valid {
		if err := m.cache.Put(credential, *outcome); err != nil {
			m.logWarn(ctx, "cache_write", "failed to cache outcome", slog.String("error", err.Error()))
		}
	}

	if _, err := m.profiles.Update(ctx, identityID, func(p *IdentityProfile) error {
		m.behavior.Record(p, vctx, level)
		return nil
	}); err != nil {
		m.logError(ctx, "profile_update", "failed to update profile",
			slog.String("identity_id", identityID), slog.String("error", err.Error()))
	}

	outcome.ValidationTimeMs = time.Since(start).Milliseconds()
	failed := outcome.FailedChecks()

	m.audit.Append(AuditEvent{
		Timestamp:        m.now(),
		IdentityID:       identityID,
		Address:          vctx.Address,
		Valid:            outcome.Valid,
		SecurityScore:    outcome.SecurityScore,
		RiskLevel:        outcome.RiskLevel,
		ValidationTimeMs: outcome.ValidationTimeMs,
		FailedChecks:     failed,
	})

	m.events.Publish(Event{
		Type:      EventValidationCompleted,
		Timestamp: m.now(),
		Data: map[string]any{
			"identity_id":    identityID,
			"valid":          outcome.Valid,
			"security_score": outcome.SecurityScore,
			"risk_level":     outcome.RiskLevel,
			"failed_checks":  failed,
			"trace_id":       infrastructure.TraceIDFromContext(ctx),
		},
	})

	logLevel := slog.LevelInfo
	if !outcome.Valid {
		logLevel = slog.LevelWarn
	}
	m.logCredentialAction(ctx, logLevel, "validation", "validation completed", credential,
		slog.String("identity_id", identityID),
		slog.Bool("valid", outcome.Valid),
		slog.Int("security_score", outcome.SecurityScore),
		slog.String("risk_level", string(outcome.RiskLevel)),
		slog.Int64("validation_time_ms", outcome.ValidationTimeMs),
	)

	return outcome, nil
}

// runChecks fans out to every signal and waits for all of them
func (m *Manager) runChecks(ctx context.Context, credential, identityID string, vctx ValidationContext) map[Method]CheckResult {
	var (
		mu     sync.Mutex
		checks = make(map[Method]CheckResult, 6)
		g      errgroup.Group
	)

	run := func(method Method, fn func(context.Context) CheckResult) {
		g.Go(func() error {
			result := m.traceCheck(ctx, method, fn)
			mu.Lock()
			checks[method] = result
			mu.Unlock()
			return nil
		})
	}

	run(MethodConsensus, func(ctx context.Context) CheckResult {
		return m.consensus.Check(ctx, credential)
	})
	run(MethodGeolocation, func(ctx context.Context) CheckResult {
		return m.geo.Check(ctx, identityID, vctx.Address)
	})
	run(MethodBehavior, func(ctx context.Context) CheckResult {
		return m.behavior.Check(ctx, identityID, vctx)
	})
	run(MethodFingerprint, func(ctx context.Context) CheckResult {
		return m.fingerprint.Check(ctx, identityID, vctx.Device)
	})
	run(MethodAnomaly, func(ctx context.Context) CheckResult {
		return m.anomaly.Check(ctx, vctx)
	})

	blockchain := m.traceCheck(ctx, MethodBlockchain, func(ctx context.Context) CheckResult {
		return m.blockchainCheck(credential)
	})

	_ = g.Wait()
	checks[MethodBlockchain] = blockchain
	return checks
}

// blockchainCheck consults the append-only revocation ledger when enabled
func (m *Manager) blockchainCheck(credential string) CheckResult {
	if !m.cfg.EnableBlockchain {
		return CheckResult{
			Method:  MethodBlockchain,
			Passed:  true,
			Details: map[string]any{"enabled": false},
		}
	}

	revoked := m.IsRevoked(HashCredential(credential))
	return CheckResult{
		Method: MethodBlockchain,
		Passed: !revoked,
		Details: map[string]any{
			"enabled": true,
			"revoked": revoked,
			"ledger":  m.revocationCount(),
		},
	}
}

// withDefaults fills zero values the engine cannot run with. A zero deadline stays zero
// and disables the deadline.
func withDefaults(cfg config.ValidationConfig) config.ValidationConfig {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = config.ValidationCacheDuration
	}
	if cfg.AuditCapacity <= 0 {
		cfg.AuditCapacity = config.AuditHistoryCapacity
	}
	if cfg.MaxUsagePatterns <= 0 {
		cfg.MaxUsagePatterns = config.UsagePatternCapacity
	}
	if cfg.MaxGeoDistanceKm <= 0 {
		cfg.MaxGeoDistanceKm = config.MaxTravelDistanceKm
	}
	if cfg.MinFingerprintSim <= 0 {
		cfg.MinFingerprintSim = config.MinFingerprintSimilarity
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = config.PeerQueryTimeout
	}
	if cfg.FingerprintSim == "" {
		cfg.FingerprintSim = config.SimilarityExact
	}
	return cfg
}

func rejectedOutcome(basic BasicResult, err error) *ValidationOutcome {
	reason := basic.Reason
	if err != nil {
		reason = err.Error()
	}
	if reason == "" {
		reason = apperrors.ErrCredentialInvalid.Error()
	}
	return &ValidationOutcome{
		Valid:         false,
		SecurityScore: 0,
		RiskLevel:     RiskCritical,
		Checks:        map[Method]CheckResult{},
		Error:         reason,
	}
}

func allPassed(checks map[Method]CheckResult) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// CachedOutcome returns the live cached outcome for credential
func (m *Manager) CachedOutcome(ctx context.Context, credential string) (*ValidationOutcome, bool) {
	entry, ok := m.cache.Get(credential)
	m.metrics.RecordCacheLookup(ctx, ok)
	if !ok {
		return nil, false
	}
	outcome := entry.Outcome
	outcome.Cached = true
	return &outcome, true
}

// VerifyForPeer answers a consensus query from another node. Revoked credentials are
// refused; otherwise a live cache entry or the basic check decides.
func (m *Manager) VerifyForPeer(ctx context.Context, credential string) PeerVote {
	vote := PeerVote{NodeID: m.nodeID}

	if m.IsRevoked(HashCredential(credential)) {
		return vote
	}
	if _, ok := m.CachedOutcome(ctx, credential); ok {
		vote.Valid = true
		return vote
	}

	basic, err := m.basic.Validate(ctx, credential)
	vote.Valid = err == nil && basic.Valid
	m.logCredentialAction(ctx, slog.LevelDebug, "peer_verification", "peer query answered", credential,
		slog.Bool("valid", vote.Valid))
	return vote
}

// GetAnalytics summarises the audit history and administrative records over period
func (m *Manager) GetAnalytics(ctx context.Context, period string) Analytics {
	window := ParsePeriod(period)
	cutoff := m.now().Add(-window)
	events := m.audit.Query(period)

	a := Analytics{
		Period:            period,
		From:              cutoff,
		TotalValidations:  len(events),
		RiskDistribution:  map[RiskLevel]int{RiskLow: 0, RiskMedium: 0, RiskHigh: 0, RiskCritical: 0},
		FailedCheckCounts: make(map[Method]int),
	}
	if !ValidPeriod(period) {
		a.Period = "24h"
	}

	identities := make(map[string]struct{})
	var scoreSum, timeSum int64
	for _, e := range events {
		if e.Valid {
			a.SuccessfulValidations++
		} else {
			a.FailedValidations++
		}
		scoreSum += int64(e.SecurityScore)
		timeSum += e.ValidationTimeMs
		a.RiskDistribution[e.RiskLevel]++
		for _, method := range e.FailedChecks {
			a.FailedCheckCounts[method]++
		}
		identities[e.IdentityID] = struct{}{}
	}
	a.UniqueIdentities = len(identities)

	if n := len(events); n > 0 {
		a.SuccessRate = float64(a.SuccessfulValidations) / float64(n)
		a.AverageScore = float64(scoreSum) / float64(n)
		a.AverageValidationMs = float64(timeSum) / float64(n)
	}

	m.adminMu.RLock()
	for _, o := range m.overrides {
		if !o.RequestedAt.Before(cutoff) {
			a.Overrides++
		}
	}
	for _, r := range m.revocations {
		if !r.RevokedAt.Before(cutoff) {
			a.Revocations++
		}
	}
	m.adminMu.RUnlock()

	m.logDebug(ctx, "analytics", "analytics computed",
		slog.String("period", a.Period), slog.Int("total", a.TotalValidations))
	return a
}

// EmergencyOverride records an override request. It is never authorized here; granting
// access needs a separate authorization step.
func (m *Manager) EmergencyOverride(ctx context.Context, reason string, duration time.Duration) (*OverrideRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewAppValidationError("override reason is required")
	}
	if duration <= 0 {
		return nil, apperrors.NewAppValidationError("override duration must be positive")
	}

	now := m.now()
	record := OverrideRecord{
		ID:          uuid.NewString(),
		Reason:      reason,
		Duration:    duration,
		RequestedAt: now,
		ExpiresAt:   now.Add(duration),
		Authorized:  false,
		RequestedBy: infrastructure.GetIdentity(ctx),
	}

	m.adminMu.Lock()
	m.overrides = appendBounded(m.overrides, record, m.audit.Capacity())
	m.adminMu.Unlock()

	m.metrics.RecordAdminEvent(ctx, "override")
	m.logError(ctx, "emergency_override", "emergency override requested",
		slog.String("override_id", record.ID),
		slog.String("reason", reason),
		slog.Duration("duration", duration),
		slog.Bool("authorized", false),
	)
	m.events.Publish(Event{Type: EventOverrideRequested, Timestamp: now, Data: record})

	out := record
	return &out, nil
}

// RevokeCredential records a revocation for a credential hash. The cached outcome is
// only purged when purge_cache_on_revoke is enabled.
func (m *Manager) RevokeCredential(ctx context.Context, credentialHash, reason string) (*RevocationRecord, error) {
	credentialHash = strings.ToLower(strings.TrimSpace(credentialHash))
	if !isSHA256Hex(credentialHash) {
		return nil, apperrors.NewAppValidationError("credential hash must be a sha256 hex digest")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewAppValidationError("revocation reason is required")
	}

	record := RevocationRecord{
		ID:             uuid.NewString(),
		CredentialHash: credentialHash,
		Reason:         reason,
		RevokedAt:      m.now(),
	}

	if m.cfg.PurgeCacheOnRevoke && m.cache.Invalidate(credentialHash) {
		record.CachePurged = true
		m.metrics.RecordCacheInvalidation(ctx)
	}

	m.adminMu.Lock()
	m.revocations = appendBounded(m.revocations, record, m.audit.Capacity())
	m.revoked[credentialHash] = struct{}{}
	m.adminMu.Unlock()

	m.metrics.RecordAdminEvent(ctx, "revocation")
	m.logWarn(ctx, "revocation", "credential revoked",
		slog.String("revocation_id", record.ID),
		slog.String("credential_hash", shortHash(credentialHash)),
		slog.String("reason", reason),
		slog.Bool("cache_purged", record.CachePurged),
	)
	m.events.Publish(Event{Type: EventCredentialRevoked, Timestamp: record.RevokedAt, Data: record})

	out := record
	return &out, nil
}

// IsRevoked reports whether a revocation was recorded for hash
func (m *Manager) IsRevoked(hash string) bool {
	m.adminMu.RLock()
	defer m.adminMu.RUnlock()
	_, ok := m.revoked[hash]
	return ok
}

func (m *Manager) revocationCount() int {
	m.adminMu.RLock()
	defer m.adminMu.RUnlock()
	return len(m.revoked)
}

// ListOverrides returns recorded overrides, oldest first
func (m *Manager) ListOverrides() []OverrideRecord {
	m.adminMu.RLock()
	defer m.adminMu.RUnlock()
	return append([]OverrideRecord(nil), m.overrides...)
}

// ListRevocations returns recorded revocations, oldest first
func (m *Manager) ListRevocations() []RevocationRecord {
	m.adminMu.RLock()
	defer m.adminMu.RUnlock()
	return append([]RevocationRecord(nil), m.revocations...)
}

// GetProfile returns a copy of an identity's profile
func (m *Manager) GetProfile(ctx context.Context, identityID string) (*IdentityProfile, error) {
	p, err := m.profiles.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrProfileNotFound) {
			return nil, fmt.Errorf("identity %q: %w", identityID, err)
		}
		return nil, err
	}
	return p, nil
}

// Events returns the manager's event bus
func (m *Manager) Events() *EventBus { return m.events }

// Cache returns the validation cache
func (m *Manager) Cache() *ValidationCache { return m.cache }

// Audit returns the audit log
func (m *Manager) Audit() *AuditLog { return m.audit }

// Profiles returns the profile store
func (m *Manager) Profiles() ProfileStore { return m.profiles }

// PeerNodes returns the configured consensus peers
func (m *Manager) PeerNodes() []string { return m.consensus.Nodes() }

func appendBounded[T any](items []T, item T, max int) []T {
	items = append(items, item)
	if max > 0 && len(items) > max {
		items = append([]T(nil), items[len(items)-max:]...)
	}
	return items
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
