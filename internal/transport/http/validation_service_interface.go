package http

import (
	"context"

	"credguard/internal/license"
	api "credguard/pkg/contracts/api/v1"
)

// ValidationServiceInterface defines the engine operations exposed over HTTP
type ValidationServiceInterface interface {
	Validate(ctx context.Context, req api.ValidateRequest) (*license.ValidationOutcome, error)
	Cached(ctx context.Context, req api.CredentialCheckRequest) (api.CacheLookupResponse, error)
	Analytics(ctx context.Context, period string) license.Analytics
	Profile(ctx context.Context, identityID string) (*license.IdentityProfile, error)
	VerifyForPeer(ctx context.Context, req api.PeerVerifyRequest) license.PeerVote

	RequestOverride(ctx context.Context, req api.OverrideRequest) (*license.OverrideRecord, error)
	Revoke(ctx context.Context, req api.RevokeRequest) (*license.RevocationRecord, error)
	Overrides(ctx context.Context) []license.OverrideRecord
	Revocations(ctx context.Context) []license.RevocationRecord
}
