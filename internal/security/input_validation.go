package security

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// InputValidator screens caller supplied strings before they reach the engine
type InputValidator struct {
	logger              *slog.Logger
	maxCredentialLength int
	maxIdentityLength   int
	maxReasonLength     int

	credentialPattern *regexp.Regexp
	identityPattern   *regexp.Regexp
	sqlPatterns       []*regexp.Regexp
	xssPatterns       []*regexp.Regexp
}

// ValidationConfig holds configuration for input validation
type ValidationConfig struct {
	MaxCredentialLength int `json:"max_credential_length"`
	MaxIdentityLength   int `json:"max_identity_length"`
	MaxReasonLength     int `json:"max_reason_length"`
}

// ValidationResult represents the result of input validation
type ValidationResult struct {
	IsValid        bool     `json:"is_valid"`
	SanitizedValue string   `json:"sanitized_value"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
	RiskScore      int      `json:"risk_score"`
	InputType      string   `json:"input_type"`
	ThreatTypes    []string `json:"threat_types"`
}

// Error joins the validation errors into one message
func (r *ValidationResult) Error() string {
	return fmt.Sprintf("invalid %s: %s", r.InputType, strings.Join(r.Errors, "; "))
}

// ThreatType represents different types of security threats
type ThreatType string

const (
	ThreatSQLInjection     ThreatType = "sql_injection"
	ThreatXSS              ThreatType = "xss"
	ThreatPathTraversal    ThreatType = "path_traversal"
	ThreatControlChars     ThreatType = "control_characters"
	ThreatMalformedInput   ThreatType = "malformed_input"
	ThreatHeaderInjection  ThreatType = "header_injection"
	ThreatSuspiciousLength ThreatType = "suspicious_length"
)

// NewInputValidator creates a new input validator
func NewInputValidator(config *ValidationConfig) *InputValidator {
	if config == nil {
		config = DefaultValidationConfig()
	}

	v := &InputValidator{
		logger:              slog.Default(),
		maxCredentialLength: config.MaxCredentialLength,
		maxIdentityLength:   config.MaxIdentityLength,
		maxReasonLength:     config.MaxReasonLength,
		// Compact JWS or opaque tokens: base64url plus the dot separator
		credentialPattern: regexp.MustCompile(`^[A-Za-z0-9_\-.=+/]+$`),
		identityPattern:   regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@\-]*$`),
	}
	v.initializeSecurityPatterns()
	return v
}

// DefaultValidationConfig returns the default limits
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxCredentialLength: 4096,
		MaxIdentityLength:   128,
		MaxReasonLength:     500,
	}
}

// SetLogger sets a custom logger for the validator
func (v *InputValidator) SetLogger(logger *slog.Logger) {
	v.logger = logger
}

func newResult(inputType string) *ValidationResult {
	return &ValidationResult{
		InputType:   inputType,
		Errors:      []string{},
		Warnings:    []string{},
		ThreatTypes: []string{},
	}
}

// ValidateCredential checks a presented credential's shape. The raw value is never logged.
func (v *InputValidator) ValidateCredential(ctx context.Context, credential string) *ValidationResult {
	result := newResult("credential")

	sanitized := strings.TrimSpace(credential)
	if sanitized == "" {
		result.Errors = append(result.Errors, "credential cannot be empty")
		return result
	}
	if len(sanitized) > v.maxCredentialLength {
		result.Errors = append(result.Errors, fmt.Sprintf("credential exceeds maximum length of %d characters", v.maxCredentialLength))
		result.ThreatTypes = append(result.ThreatTypes, string(ThreatSuspiciousLength))
		result.RiskScore += 30
		v.logSuspiciousInput(ctx, result, "")
		return result
	}
	if !utf8.ValidString(sanitized) {
		result.Errors = append(result.Errors, "credential is not valid UTF-8")
		result.ThreatTypes = append(result.ThreatTypes, string(ThreatMalformedInput))
		result.RiskScore += 30
		v.logSuspiciousInput(ctx, result, "")
		return result
	}
	if !v.credentialPattern.MatchString(sanitized) {
		result.Errors = append(result.Errors, "credential contains unsupported characters")
		result.RiskScore += 20
		if v.containsControlCharacters(sanitized) {
			result.ThreatTypes = append(result.ThreatTypes, string(ThreatControlChars))
			result.RiskScore += 20
		}
		v.logSuspiciousInput(ctx, result, "")
		return result
	}

	result.SanitizedValue = sanitized
	result.IsValid = true
	return result
}

// ValidateIdentityID checks an identity identifier
func (v *InputValidator) ValidateIdentityID(ctx context.Context, identityID string) *ValidationResult {
	result := newResult("identity_id")

	sanitized := strings.TrimSpace(identityID)
	if sanitized == "" {
		result.Errors = append(result.Errors, "identity id cannot be empty")
		return result
	}
	if len(sanitized) > v.maxIdentityLength {
		result.Errors = append(result.Errors, fmt.Sprintf("identity id exceeds maximum length of %d characters", v.maxIdentityLength))
		return result
	}
	result.SanitizedValue = sanitized

	if !v.identityPattern.MatchString(sanitized) {
		result.Errors = append(result.Errors, "identity id contains unsupported characters")
		result.RiskScore += 20
		result.ThreatTypes = append(result.ThreatTypes, v.detectThreats(sanitized)...)
		result.RiskScore += 15 * len(result.ThreatTypes)
	}

	if result.RiskScore > 30 {
		v.logSuspiciousInput(ctx, result, sanitized)
	}
	result.IsValid = len(result.Errors) == 0
	return result
}

// ValidateIPAddress validates a client address. Private and loopback addresses are
// accepted with a warning since the geo check treats them as unresolvable.
func (v *InputValidator) ValidateIPAddress(ctx context.Context, ipAddress string) *ValidationResult {
	result := newResult("ip_address")

	sanitized := strings.TrimSpace(ipAddress)
	if sanitized == "" {
		result.Errors = append(result.Errors, "IP address cannot be empty")
		return result
	}
	if len(sanitized) > 45 {
		result.Errors = append(result.Errors, "IP address exceeds maximum length of 45 characters")
		return result
	}
	result.SanitizedValue = sanitized

	ip := net.ParseIP(sanitized)
	if ip == nil {
		result.Errors = append(result.Errors, "invalid IP address format")
		result.RiskScore += 25
		v.logSuspiciousInput(ctx, result, sanitized)
		return result
	}
	result.SanitizedValue = ip.String()

	switch {
	case ip.IsLoopback():
		result.Warnings = append(result.Warnings, "loopback IP address")
	case ip.IsPrivate():
		result.Warnings = append(result.Warnings, "private IP address")
	case ip.IsUnspecified(), ip.IsMulticast():
		result.Warnings = append(result.Warnings, "non-routable IP address")
		result.RiskScore += 10
	}

	result.IsValid = true
	return result
}

// ValidateReason checks the free text attached to overrides and revocations
func (v *InputValidator) ValidateReason(ctx context.Context, reason string) *ValidationResult {
	result := newResult("reason")

	sanitized := strings.TrimSpace(reason)
	if sanitized == "" {
		result.Errors = append(result.Errors, "reason cannot be empty")
		return result
	}
	if utf8.RuneCountInString(sanitized) > v.maxReasonLength {
		result.Errors = append(result.Errors, fmt.Sprintf("reason exceeds maximum length of %d characters", v.maxReasonLength))
		return result
	}

	threats := v.detectThreats(sanitized)
	result.ThreatTypes = append(result.ThreatTypes, threats...)
	for _, threat := range threats {
		switch ThreatType(threat) {
		case ThreatSQLInjection:
			result.RiskScore += 50
		case ThreatXSS:
			result.RiskScore += 40
		default:
			result.RiskScore += 15
		}
	}
	if len(threats) > 0 {
		result.Errors = append(result.Errors, "reason contains disallowed content")
	}

	result.SanitizedValue = v.removeControlCharacters(sanitized)
	if result.RiskScore > 0 {
		v.logSuspiciousInput(ctx, result, sanitized)
	}
	result.IsValid = len(result.Errors) == 0
	return result
}

func (v *InputValidator) detectThreats(input string) []string {
	var threats []string
	lower := strings.ToLower(input)

	for _, p := range v.sqlPatterns {
		if p.MatchString(lower) {
			threats = append(threats, string(ThreatSQLInjection))
			break
		}
	}
	for _, p := range v.xssPatterns {
		if p.MatchString(lower) {
			threats = append(threats, string(ThreatXSS))
			break
		}
	}
	if containsAny(lower, "../", "..\\", "..%2f", "%2e%2e%2f", "..%5c") {
		threats = append(threats, string(ThreatPathTraversal))
	}
	if strings.ContainsAny(input, "\r\n") || containsAny(lower, "%0a", "%0d") {
		threats = append(threats, string(ThreatHeaderInjection))
	} else if v.containsControlCharacters(input) {
		threats = append(threats, string(ThreatControlChars))
	}
	if !utf8.ValidString(input) {
		threats = append(threats, string(ThreatMalformedInput))
	}
	return threats
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func (v *InputValidator) containsControlCharacters(input string) bool {
	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' {
			return true
		}
	}
	return false
}

func (v *InputValidator) removeControlCharacters(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' {
			return -1
		}
		return r
	}, input)
}

func (v *InputValidator) initializeSecurityPatterns() {
	sqlPatterns := []string{
		`'\s*;\s*(drop|delete|insert|update|create|alter)\b`,
		`\bunion\s+(all\s+)?select\b`,
		`--\s*(drop|delete)\b`,
		`'\s*(or|and)\s+'?\d+'?\s*=\s*'?\d+`,
		`\b(exec|execute)\s*\(`,
	}
	xssPatterns := []string{
		`<\s*/?\s*script\b`,
		`\b(javascript|vbscript):`,
		`\bon[a-z]+\s*=`,
		`<\s*(iframe|object|embed|applet)\b`,
	}

	v.sqlPatterns = compileAll(sqlPatterns)
	v.xssPatterns = compileAll(xssPatterns)
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// logSuspiciousInput records a rejected input. shown is the value safe to log, if any.
func (v *InputValidator) logSuspiciousInput(ctx context.Context, result *ValidationResult, shown string) {
	if len(shown) > 100 {
		shown = shown[:100] + "..."
	}
	attrs := []any{
		slog.String("input_type", result.InputType),
		slog.Int("risk_score", result.RiskScore),
		slog.Any("threat_types", result.ThreatTypes),
		slog.Any("errors", result.Errors),
	}
	if shown != "" {
		attrs = append(attrs, slog.String("input", shown))
	}
	v.logger.WarnContext(ctx, "Suspicious input detected", attrs...)
}
