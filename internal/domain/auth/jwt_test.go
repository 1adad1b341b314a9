package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
)

func TestJWTService_RoundTrip(t *testing.T) {
	s, err := NewJWTService(DefaultJWTConfig("secret"))
	require.NoError(t, err)

	actor := security.Actor{ID: id.New(), Role: security.RoleVendor}
	token, exp, err := s.GenerateAccessToken(actor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Minute)

	got, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestJWTService_Rejects(t *testing.T) {
	s, _ := NewJWTService(DefaultJWTConfig("secret"))
	other, _ := NewJWTService(DefaultJWTConfig("other"))

	token, _, err := other.GenerateAccessToken(security.Actor{ID: id.New(), Role: security.RoleAdmin})
	require.NoError(t, err)
	_, err = s.ValidateToken(token)
	assert.Error(t, err, "wrong secret")

	expired, _ := NewJWTService(JWTConfig{Secret: "secret", Issuer: "marketplace", AccessTokenTTL: -time.Minute})
	token, _, _ = expired.GenerateAccessToken(security.Actor{ID: id.New(), Role: security.RoleAdmin})
	_, err = s.ValidateToken(token)
	assert.Error(t, err, "expired")

	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "marketplace", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           id.New().String(),
		Role:             "superuser",
	})
	signed, err := bad.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.ValidateToken(signed)
	assert.ErrorContains(t, err, "unknown role")

	_, err = NewJWTService(JWTConfig{})
	assert.Error(t, err)
}
