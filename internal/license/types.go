package license

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"credguard/internal/security"
)

// Method names one validation signal
type Method string

const (
	MethodConsensus   Method = "consensus"
	MethodBlockchain  Method = "blockchain"
	MethodBehavior    Method = "behavior"
	MethodGeolocation Method = "geolocation"
	MethodFingerprint Method = "fingerprint"
	MethodAnomaly     Method = "anomaly"
)

// RiskLevel is the four-bucket classification of a validation
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Behavior anomaly names reported in CheckResult details
const (
	AnomalyUnusualVolume = "unusual_request_volume"
	AnomalyNewAddress    = "new_ip_address"
	AnomalyOffHours      = "off_hours_usage"
)

// ValidationContext is the per-call request context supplied by the caller
type ValidationContext struct {
	IdentityID       string                     `json:"identity_id"`
	Address          string                     `json:"address"`
	RequestsThisHour int                        `json:"requests_this_hour"`
	UniqueIPs        int                        `json:"unique_ips"`
	RapidRequests    int                        `json:"rapid_requests"`
	LocationChanged  bool                       `json:"location_changed"`
	DeviceChanged    bool                       `json:"device_changed"`
	Device           *security.DeviceAttributes `json:"device,omitempty"`
}

// GeoPoint is a latitude/longitude pair in degrees
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoLocation is what a GeoResolver returns for an address
type GeoLocation struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country,omitempty"`
	Region  string  `json:"region,omitempty"`
	City    string  `json:"city,omitempty"`
}

// Point drops the descriptive fields
func (g GeoLocation) Point() GeoPoint {
	return GeoPoint{Lat: g.Lat, Lon: g.Lon}
}

// UsagePattern is one entry of a profile's rolling usage history
type UsagePattern struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	OffHours  bool      `json:"off_hours"`
	RiskLevel RiskLevel `json:"risk_level"`
	Requests  int       `json:"requests"`
}

// IdentityProfile is the rolling state kept per identity
type IdentityProfile struct {
	IdentityID            string              `json:"identity_id"`
	TotalRequests         int64               `json:"total_requests"`
	AvgRequestsPerHour    float64             `json:"avg_requests_per_hour"`
	TypicalAddresses      map[string]struct{} `json:"-"`
	UsagePatterns         []UsagePattern      `json:"usage_patterns"`
	LastKnownLocation     *GeoPoint           `json:"last_known_location,omitempty"`
	DeviceFingerprintHash string              `json:"device_fingerprint_hash,omitempty"`
	DeviceFeatures        []string            `json:"device_features,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// NewIdentityProfile returns an empty profile for id
func NewIdentityProfile(id string, now time.Time) *IdentityProfile {
	return &IdentityProfile{
		IdentityID:       id,
		TypicalAddresses: make(map[string]struct{}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// HasHistory reports whether the profile has seen at least one validation
func (p *IdentityProfile) HasHistory() bool {
	return p.TotalRequests > 0 || len(p.UsagePatterns) > 0
}

// Addresses returns the typical address set as a sorted slice
func (p *IdentityProfile) Addresses() []string {
	return slices.Sorted(maps.Keys(p.TypicalAddresses))
}

// OffHoursEntries counts usage patterns flagged as off-hours
func (p *IdentityProfile) OffHoursEntries() int {
	n := 0
	for _, u := range p.UsagePatterns {
		if u.OffHours {
			n++
		}
	}
	return n
}

// RecordUsage appends a usage entry, trims the ring to max and recomputes the average
// over the most recent window entries.
func (p *IdentityProfile) RecordUsage(u UsagePattern, max, window int) {
	p.UsagePatterns = append(p.UsagePatterns, u)
	if max > 0 && len(p.UsagePatterns) > max {
		p.UsagePatterns = append([]UsagePattern(nil), p.UsagePatterns[len(p.UsagePatterns)-max:]...)
	}
	p.AvgRequestsPerHour = averageRequests(p.UsagePatterns, window)
}

// Clone returns a deep copy safe to hand out of a store
func (p *IdentityProfile) Clone() *IdentityProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.TypicalAddresses = make(map[string]struct{}, len(p.TypicalAddresses))
	for k := range p.TypicalAddresses {
		c.TypicalAddresses[k] = struct{}{}
	}
	c.UsagePatterns = append([]UsagePattern(nil), p.UsagePatterns...)
	c.DeviceFeatures = append([]string(nil), p.DeviceFeatures...)
	if p.LastKnownLocation != nil {
		loc := *p.LastKnownLocation
		c.LastKnownLocation = &loc
	}
	return &c
}

type profileJSON IdentityProfile

// MarshalJSON writes the address set as a sorted list
func (p IdentityProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		profileJSON
		TypicalAddresses []string `json:"typical_addresses"`
	}{profileJSON(p), p.Addresses()})
}

// UnmarshalJSON restores the address set from its list form
func (p *IdentityProfile) UnmarshalJSON(data []byte) error {
	var raw struct {
		profileJSON
		TypicalAddresses []string `json:"typical_addresses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = IdentityProfile(raw.profileJSON)
	p.TypicalAddresses = make(map[string]struct{}, len(raw.TypicalAddresses))
	for _, addr := range raw.TypicalAddresses {
		p.TypicalAddresses[addr] = struct{}{}
	}
	return nil
}

func averageRequests(patterns []UsagePattern, window int) float64 {
	if len(patterns) == 0 {
		return 0
	}
	start := 0
	if window > 0 && len(patterns) > window {
		start = len(patterns) - window
	}
	recent := patterns[start:]
	total := 0
	for _, u := range recent {
		total += u.Requests
	}
	return float64(total) / float64(len(recent))
}

// CheckResult is the outcome of one signal
type CheckResult struct {
	Method  Method         `json:"method"`
	Passed  bool           `json:"passed"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func failedResult(method Method, err error) CheckResult {
	return CheckResult{Method: method, Passed: false, Error: err.Error()}
}

// ValidationOutcome is the full response of a validation
type ValidationOutcome struct {
	Valid            bool                   `json:"valid"`
	SecurityScore    int                    `json:"security_score"`
	RiskLevel        RiskLevel              `json:"risk_level"`
	Checks           map[Method]CheckResult `json:"checks"`
	ValidationTimeMs int64                  `json:"validation_time_ms"`
	Error            string                 `json:"error,omitempty"`
	Tier             string                 `json:"tier,omitempty"`
	Features         []string               `json:"features,omitempty"`
	Cached           bool                   `json:"cached,omitempty"`
}

// FailedChecks lists the methods that did not pass, sorted by name
func (o *ValidationOutcome) FailedChecks() []Method {
	var failed []Method
	for method, result := range o.Checks {
		if !result.Passed {
			failed = append(failed, method)
		}
	}
	slices.Sort(failed)
	return failed
}

// AuditEvent is one entry of the validation history
type AuditEvent struct {
	Timestamp        time.Time `json:"timestamp"`
	IdentityID       string    `json:"identity_id"`
	Address          string    `json:"address"`
	Valid            bool      `json:"valid"`
	SecurityScore    int       `json:"security_score"`
	RiskLevel        RiskLevel `json:"risk_level"`
	ValidationTimeMs int64     `json:"validation_time_ms"`
	FailedChecks     []Method  `json:"failed_checks,omitempty"`
}

// OverrideRecord is an emergency override request. It never grants access by itself.
type OverrideRecord struct {
	ID          string        `json:"id"`
	Reason      string        `json:"reason"`
	Duration    time.Duration `json:"duration"`
	RequestedAt time.Time     `json:"requested_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Authorized  bool          `json:"authorized"`
	RequestedBy string        `json:"requested_by,omitempty"`
}

// RevocationRecord marks a credential hash as revoked
type RevocationRecord struct {
	ID             string    `json:"id"`
	CredentialHash string    `json:"credential_hash"`
	Reason         string    `json:"reason"`
	RevokedAt      time.Time `json:"revoked_at"`
	CachePurged    bool      `json:"cache_purged"`
}

// Analytics aggregates the audit history over a period
type Analytics struct {
	Period                string            `json:"period"`
	From                  time.Time         `json:"from"`
	TotalValidations      int               `json:"total_validations"`
	SuccessfulValidations int               `json:"successful_validations"`
	FailedValidations     int               `json:"failed_validations"`
	SuccessRate           float64           `json:"success_rate"`
	AverageScore          float64           `json:"average_score"`
	AverageValidationMs   float64           `json:"average_validation_ms"`
	RiskDistribution      map[RiskLevel]int `json:"risk_distribution"`
	FailedCheckCounts     map[Method]int    `json:"failed_check_counts"`
	UniqueIdentities      int               `json:"unique_identities"`
	Overrides             int               `json:"overrides"`
	Revocations           int               `json:"revocations"`
}
