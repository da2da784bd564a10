package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"credguard/internal/errors"
	"credguard/internal/license"
	"credguard/internal/security"
	api "credguard/pkg/contracts/api/v1"
)

// ValidationService adapts HTTP contracts onto the validation engine. It screens
// caller input before anything reaches the manager.
type ValidationService struct {
	manager *license.Manager
	inputs  *security.InputValidator
	logger  *slog.Logger
}

// NewValidationService creates a validation service
func NewValidationService(manager *license.Manager, inputs *security.InputValidator, logger *slog.Logger) *ValidationService {
	if logger == nil {
		logger = slog.Default()
	}
	if inputs == nil {
		inputs = security.NewInputValidator(nil)
	}
	return &ValidationService{
		manager: manager,
		inputs:  inputs,
		logger:  logger.With(slog.String("service", "validation")),
	}
}

// Validate runs the full multi-signal validation. A credential that fails any check
// comes back as an outcome with Valid false; the error is reserved for bad input
// and for deadline or cancellation.
func (s *ValidationService) Validate(ctx context.Context, req api.ValidateRequest) (*license.ValidationOutcome, error) {
	credential, err := s.screenCredential(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	vctx := license.ValidationContext{
		RequestsThisHour: req.RequestsThisHour,
		UniqueIPs:        req.UniqueIPs,
		RapidRequests:    req.RapidRequests,
		LocationChanged:  req.LocationChanged,
		DeviceChanged:    req.DeviceChanged,
		Device:           deviceAttributes(req.Device),
	}

	if req.IdentityID != "" {
		result := s.inputs.ValidateIdentityID(ctx, req.IdentityID)
		if !result.IsValid {
			return nil, errors.NewAppValidationError(result.Error()).WithContext("field", "identity_id")
		}
		vctx.IdentityID = result.SanitizedValue
	}
	if req.Address != "" {
		result := s.inputs.ValidateIPAddress(ctx, req.Address)
		if !result.IsValid {
			return nil, errors.NewAppValidationError(result.Error()).WithContext("field", "address")
		}
		vctx.Address = result.SanitizedValue
	}

	outcome, err := s.manager.Validate(ctx, credential, vctx)
	if err != nil {
		s.logger.WarnContext(ctx, "validation aborted", slog.String("error", err.Error()))
		return nil, err
	}
	return outcome, nil
}

// Cached returns the cached outcome for a credential without revalidating it
func (s *ValidationService) Cached(ctx context.Context, req api.CredentialCheckRequest) (api.CacheLookupResponse, error) {
	credential, err := s.screenCredential(ctx, req.Credential)
	if err != nil {
		return api.CacheLookupResponse{}, err
	}

	resp := api.CacheLookupResponse{Checked: time.Now().UTC()}
	if outcome, ok := s.manager.CachedOutcome(ctx, credential); ok {
		resp.Cached = true
		resp.Outcome = outcome
	}
	return resp, nil
}

// Analytics summarises validation history. Unrecognised periods fall back to 24h.
func (s *ValidationService) Analytics(ctx context.Context, period string) license.Analytics {
	return s.manager.GetAnalytics(ctx, strings.TrimSpace(period))
}

// RequestOverride records an emergency override request. Overrides are never
// authorized by this call.
func (s *ValidationService) RequestOverride(ctx context.Context, req api.OverrideRequest) (*license.OverrideRecord, error) {
	reason := s.inputs.ValidateReason(ctx, req.Reason)
	if !reason.IsValid {
		return nil, errors.NewAppValidationError(reason.Error()).WithContext("field", "reason")
	}
	if !license.ValidPeriod(req.Duration) {
		return nil, errors.NewAppValidationError("duration must look like 12h, 3d or 1m").
			WithContext("field", "duration")
	}
	return s.manager.EmergencyOverride(ctx, reason.SanitizedValue, license.ParsePeriod(req.Duration))
}

// Revoke records a revocation for a credential hash
func (s *ValidationService) Revoke(ctx context.Context, req api.RevokeRequest) (*license.RevocationRecord, error) {
	reason := s.inputs.ValidateReason(ctx, req.Reason)
	if !reason.IsValid {
		return nil, errors.NewAppValidationError(reason.Error()).WithContext("field", "reason")
	}
	return s.manager.RevokeCredential(ctx, req.CredentialHash, reason.SanitizedValue)
}

// Overrides lists recorded override requests
func (s *ValidationService) Overrides(ctx context.Context) []license.OverrideRecord {
	return s.manager.ListOverrides()
}

// Revocations lists recorded revocations
func (s *ValidationService) Revocations(ctx context.Context) []license.RevocationRecord {
	return s.manager.ListRevocations()
}

// VerifyForPeer answers a consensus query from another node. Malformed input is a
// negative vote, not an error, so a peer never fails on our account.
func (s *ValidationService) VerifyForPeer(ctx context.Context, req api.PeerVerifyRequest) license.PeerVote {
	result := s.inputs.ValidateCredential(ctx, req.Credential)
	if !result.IsValid {
		return license.PeerVote{}
	}
	return s.manager.VerifyForPeer(ctx, result.SanitizedValue)
}

// Profile returns the behavior profile of an identity
func (s *ValidationService) Profile(ctx context.Context, identityID string) (*license.IdentityProfile, error) {
	result := s.inputs.ValidateIdentityID(ctx, identityID)
	if !result.IsValid {
		return nil, errors.NewAppValidationError(result.Error()).WithContext("field", "id")
	}
	return s.manager.GetProfile(ctx, result.SanitizedValue)
}

func (s *ValidationService) screenCredential(ctx context.Context, credential string) (string, error) {
	result := s.inputs.ValidateCredential(ctx, credential)
	if !result.IsValid {
		return "", errors.NewAppValidationError(result.Error()).WithContext("field", "credential")
	}
	return result.SanitizedValue, nil
}

func deviceAttributes(d *api.DeviceInfo) *security.DeviceAttributes {
	if d == nil {
		return nil
	}
	return &security.DeviceAttributes{
		Platform:          d.Platform,
		Architecture:      d.Architecture,
		Hostname:          d.Hostname,
		CPUModels:         append([]string(nil), d.CPUModels...),
		TotalMemory:       d.TotalMemory,
		NetworkInterfaces: append([]string(nil), d.NetworkInterfaces...),
		Uptime:            time.Duration(d.UptimeSeconds) * time.Second,
		Env:               d.Env,
	}
}
