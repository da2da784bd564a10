package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"credguard/internal/security"
)

// TestTokenSecret signs every credential minted by the fixtures
const TestTokenSecret = "credguard-test-secret"

// CredentialClaims mirrors the claim set accepted by the token validator
type CredentialClaims struct {
	Tier string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// MintCredential returns an HS256 credential for subject that expires after ttl.
// A negative ttl yields an already expired credential.
func MintCredential(t *testing.T, subject, tier string, ttl time.Duration) string {
	t.Helper()
	return mint(t, TestTokenSecret, subject, tier, ttl)
}

// MintCredentialWithSecret signs with secret instead of TestTokenSecret
func MintCredentialWithSecret(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	return mint(t, secret, subject, "", ttl)
}

func mint(t *testing.T, secret, subject, tier string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := CredentialClaims{
		Tier: tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "credguard",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign credential: %v", err)
	}
	return token
}

// DeviceAttributes returns a stable attribute set for a test device
func DeviceAttributes(hostname string) *security.DeviceAttributes {
	return &security.DeviceAttributes{
		Platform:          "linux",
		Architecture:      "amd64",
		Hostname:          hostname,
		CPUModels:         []string{"Test CPU @ 3.0GHz"},
		TotalMemory:       16 << 30,
		NetworkInterfaces: []string{"eth0/02:42:ac:11:00:02"},
		Env:               map[string]string{"LANG": "en_US.UTF-8"},
	}
}
