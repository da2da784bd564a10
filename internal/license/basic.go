package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "credguard/internal/errors"
)

// BasicResult is the verdict of the signature and expiry check
type BasicResult struct {
	Valid     bool      `json:"valid"`
	Subject   string    `json:"subject,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Features  []string  `json:"features,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// BasicValidator checks a credential's signature and expiry. A returned error is a
// CredentialError and stops the pipeline.
type BasicValidator interface {
	Validate(ctx context.Context, credential string) (BasicResult, error)
}

// BasicValidatorFunc adapts a function to BasicValidator
type BasicValidatorFunc func(ctx context.Context, credential string) (BasicResult, error)

// Validate calls f
func (f BasicValidatorFunc) Validate(ctx context.Context, credential string) (BasicResult, error) {
	return f(ctx, credential)
}

// CredentialClaims is the claim set carried by a signed credential
type CredentialClaims struct {
	Tier     string   `json:"tier,omitempty"`
	Features []string `json:"features,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies HMAC-signed JWT credentials
type TokenValidator struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// NewTokenValidator returns a validator for credentials signed with secret.
// An empty issuer accepts any issuer.
func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{
		signingKey: []byte(secret),
		issuer:     issuer,
		now:        time.Now,
	}
}

// Validate implements BasicValidator
func (v *TokenValidator) Validate(ctx context.Context, credential string) (BasicResult, error) {
	if err := ctx.Err(); err != nil {
		return BasicResult{}, err
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return BasicResult{Reason: "empty credential"},
			apperrors.NewCredentialError("empty credential", apperrors.ErrCredentialMalformed)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &CredentialClaims{}
	parsed, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return BasicResult{Reason: "credential has expired"},
				apperrors.NewCredentialError("credential has expired", apperrors.ErrCredentialExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return BasicResult{Reason: "credential is malformed"},
				apperrors.NewCredentialError("credential is malformed", apperrors.ErrCredentialMalformed)
		default:
			return BasicResult{Reason: "credential signature invalid"},
				apperrors.NewCredentialError(fmt.Sprintf("credential rejected: %v", err), apperrors.ErrCredentialInvalid)
		}
	}

	if !parsed.Valid {
		return BasicResult{Reason: "credential invalid"},
			apperrors.NewCredentialError("credential invalid", apperrors.ErrCredentialInvalid)
	}

	result := BasicResult{
		Valid:    true,
		Subject:  claims.Subject,
		Tier:     claims.Tier,
		Features: claims.Features,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}
