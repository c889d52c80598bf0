package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "timecapsule",
		AccessTokenTTL: time.Hour,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)
	require.Equal(t, time.Hour, svc.TTL())

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:    "user-123",
		Email:     "alice@example.com",
		Role:      "admin",
		SessionID: "session-456",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "session-456", claims.SessionID)
	require.Equal(t, "timecapsule", claims.Issuer)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	current := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{Secret: "s", AccessTokenTTL: time.Minute, Clock: func() time.Time { return current }})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "u"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateAccessTokenInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2030, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Clock: now})
	require.NoError(t, err)
	verifier, err := NewJWTService(JWTConfig{Secret: "other-secret", Clock: now})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken(AccessTokenInput{UserID: "u"})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateAccessTokenChecksIssuer(t *testing.T) {
	now := func() time.Time { return time.Date(2030, 1, 1, 13, 0, 0, 0, time.UTC) }

	a, err := NewJWTService(JWTConfig{Secret: "shared", Issuer: "a", Clock: now})
	require.NoError(t, err)
	b, err := NewJWTService(JWTConfig{Secret: "shared", Issuer: "b", Clock: now})
	require.NoError(t, err)

	token, err := a.GenerateAccessToken(AccessTokenInput{UserID: "u"})
	require.NoError(t, err)

	_, err = b.ValidateAccessToken(token)
	require.EqualError(t, err, "jwt: invalid issuer")

	_, err = a.ValidateAccessToken("")
	require.Error(t, err)
	_, err = a.GenerateAccessToken(AccessTokenInput{})
	require.Error(t, err)
}
