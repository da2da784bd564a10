package testutil

import (
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	logger, handler := NewTestLogger(t)

	logger.Info("first", "key", "value")
	logger.With("component", "engine").Warn("second")
	logger.Error("third")

	assert.Equal(t, 3, handler.Count())
	assert.True(t, handler.ContainsMessage("second"))
	assert.True(t, handler.ContainsAttr("key", "value"))
	assert.True(t, handler.ContainsAttr("component", "engine"))
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelWarn), 1)

	AssertLogContains(t, handler, slog.LevelInfo, "first")
	AssertLogAttr(t, handler, "key", "value")

	handler.Clear()
	assert.Zero(t, handler.Count())
	AssertNoErrors(t, handler)
}

func TestMintCredential(t *testing.T) {
	token := MintCredential(t, "user-1", "pro", time.Hour)

	claims := &CredentialClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(TestTokenSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "pro", claims.Tier)

	expired := MintCredential(t, "user-1", "", -time.Hour)
	_, err = jwt.ParseWithClaims(expired, &CredentialClaims{}, func(*jwt.Token) (any, error) {
		return []byte(TestTokenSecret), nil
	})
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
