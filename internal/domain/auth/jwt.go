// Package auth turns bearer tokens into actors. Identity verification itself
// happens upstream; tokens only carry the user id and marketplace role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
)

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "marketplace",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

type JWTService struct {
	config JWTConfig
}

func NewJWTService(config JWTConfig) (*JWTService, error) {
	if config.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTService{config: config}, nil
}

// GenerateAccessToken signs a token for actor.
func (s *JWTService) GenerateAccessToken(actor security.Actor) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: actor.ID.String(),
		Role:   string(actor.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the actor.
func (s *JWTService) ValidateToken(tokenString string) (security.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return security.Actor{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return security.Actor{}, errors.New("invalid token claims")
	}

	userID, err := id.Parse(claims.UserID)
	if err != nil {
		return security.Actor{}, fmt.Errorf("invalid uid claim: %w", err)
	}
	role, err := security.ParseRole(claims.Role)
	if err != nil {
		return security.Actor{}, err
	}
	return security.Actor{ID: userID, Role: role}, nil
}
