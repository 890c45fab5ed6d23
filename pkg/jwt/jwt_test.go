package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRoundTrip(t *testing.T) {
	svc := NewService("configured-secret", time.Hour)

	token, err := svc.GenerateToken(42, "aria@example.com", RoleUser)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "aria@example.com", claims.Email)
	assert.Equal(t, string(RoleUser), claims.Role)
}

func TestServiceUsesConfiguredSecret(t *testing.T) {
	// The environment must not leak into signing or validation.
	t.Setenv("JWT_SECRET", "env-secret")

	signer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, err := signer.GenerateToken(1, "user@example.com", RoleUser)
	require.NoError(t, err)

	_, err = signer.ValidateToken(token)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestServiceUsesConfiguredExpiry(t *testing.T) {
	svc := NewService("configured-secret", -time.Minute)

	token, err := svc.GenerateToken(1, "user@example.com", RoleUser)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestServiceRejectsGarbageToken(t *testing.T) {
	svc := NewService("configured-secret", time.Hour)

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
