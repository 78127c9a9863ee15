package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// movableClock lets a test issue a token and then age it past expiry.
type movableClock struct{ at time.Time }

func (c *movableClock) now() time.Time { return c.at }

func newTestService(t *testing.T, secret, issuer string, clock *movableClock) *JWTService {
	t.Helper()

	svc, err := NewJWTService(JWTConfig{
		Secret:         secret,
		Issuer:         issuer,
		AccessTokenTTL: time.Hour,
		Clock:          clock.now,
	})
	require.NoError(t, err)
	return svc
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := &movableClock{at: time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)}
	svc := newTestService(t, "super-secret", "escala", clock)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:   "user-123",
		Email:    "ana@example.com",
		Name:     "Ana Souza",
		Audience: []string{"api"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)

	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "ana@example.com", claims.Email)
	require.Equal(t, "Ana Souza", claims.Name)
	require.Equal(t, "escala", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"api"}, claims.Audience)
	require.True(t, claims.IssuedAt.Time.Equal(clock.at))
	require.True(t, claims.ExpiresAt.Time.Equal(clock.at.Add(time.Hour)))

	identity := claims.Identity()
	require.Equal(t, "user-123", identity.UID)
	require.Equal(t, "ana@example.com", identity.Email)
	require.False(t, identity.IsZero())
}

func TestValidateAccessTokenRejectsEmptyToken(t *testing.T) {
	clock := &movableClock{at: time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)}
	svc := newTestService(t, "super-secret", "escala", clock)

	_, err := svc.ValidateAccessToken("")
	require.EqualError(t, err, "jwt: token string is empty")
}

func TestValidateAccessTokenRejectsForgedSignature(t *testing.T) {
	clock := &movableClock{at: time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)}
	issuer := newTestService(t, "issuer-secret", "escala", clock)
	verifier := newTestService(t, "other-secret", "escala", clock)

	token, err := issuer.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateAccessTokenRejectsWrongIssuer(t *testing.T) {
	clock := &movableClock{at: time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)}
	minted := newTestService(t, "shared-secret", "escala", clock)
	strict := newTestService(t, "shared-secret", "somewhere-else", clock)

	token, err := minted.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	_, err = strict.ValidateAccessToken(token)
	require.EqualError(t, err, "jwt: invalid issuer")
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	clock := &movableClock{at: time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)}
	svc := newTestService(t, "super-secret", "escala", clock)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	clock.at = clock.at.Add(2 * time.Hour)

	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIdentityCanonicalEmail(t *testing.T) {
	identity := Identity{UID: "u1", Email: "  Ana@Example.COM "}
	require.Equal(t, "ana@example.com", identity.CanonicalEmail())
}
