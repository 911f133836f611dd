package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecheck/telecheck-api/internal/domain"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	tokens := newTestTokens()

	token, expiresAt, err := tokens.GenerateToken("u1", "u1@telecheck.local", domain.RolePharmacist)
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(fixedNow.Add(time.Hour)))

	claims, err := tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "u1@telecheck.local", claims.Email)
	assert.Equal(t, domain.RolePharmacist, claims.Role)
}

func TestTokenManagerRejectsTokenOnceClockPassesExpiry(t *testing.T) {
	tokens := newTestTokens()
	token, _, err := tokens.GenerateTokenWithTTL("u1", "", domain.RoleAdmin, time.Minute)
	require.NoError(t, err)

	later := tokens.WithClock(func() time.Time { return fixedNow.Add(2 * time.Minute) })
	_, err = later.ParseToken(token)
	assert.Error(t, err)

	_, err = tokens.ParseToken(token)
	assert.NoError(t, err)
}

func TestHashAndComparePassword(t *testing.T) {
	hashed, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hashed)

	assert.NoError(t, ComparePassword(hashed, "s3cret-pass"))
	assert.Error(t, ComparePassword(hashed, "wrong-pass"))
}
