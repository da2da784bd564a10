package license

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "credguard/internal/errors"
	"credguard/internal/shared/testutil"
)

func TestTokenValidator(t *testing.T) {
	validator := NewTokenValidator(testutil.TestTokenSecret, "credguard")
	ctx := context.Background()

	t.Run("valid credential", func(t *testing.T) {
		cred := testutil.MintCredential(t, "user-1", "pro", time.Hour)

		result, err := validator.Validate(ctx, cred)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, "user-1", result.Subject)
		assert.Equal(t, "pro", result.Tier)
		assert.False(t, result.ExpiresAt.IsZero())
	})

	tests := []struct {
		name       string
		credential func(t *testing.T) string
		sentinel   error
	}{
		{"empty", func(t *testing.T) string { return "  " }, apperrors.ErrCredentialMalformed},
		{"garbage", func(t *testing.T) string { return "not-a-token" }, apperrors.ErrCredentialMalformed},
		{"expired", func(t *testing.T) string {
			return testutil.MintCredential(t, "user-1", "pro", -time.Minute)
		}, apperrors.ErrCredentialExpired},
		{"wrong secret", func(t *testing.T) string {
			return testutil.MintCredentialWithSecret(t, "other-secret", "user-1", time.Hour)
		}, apperrors.ErrCredentialInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.Validate(ctx, tt.credential(t))
			require.Error(t, err)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.Reason)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, apperrors.ErrTypeCredential, apperrors.TypeOf(err))
		})
	}
}

func TestTokenValidatorIssuerAndFeatures(t *testing.T) {
	claims := CredentialClaims{
		Tier:     "enterprise",
		Features: []string{"sso", "audit"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenValidator("secret", "credguard").Validate(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrCredentialInvalid)

	result, err := NewTokenValidator("secret", "").Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, []string{"sso", "audit"}, result.Features)
}

func TestTokenValidatorRequiresExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenValidator("secret", "").Validate(context.Background(), token)
	assert.Error(t, err)
}
