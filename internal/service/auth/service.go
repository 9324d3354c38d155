// Package auth validates the bearer tokens carried by operator API
// requests.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/ports"
)

// Claims are the JWT claims the control plane issues.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Service validates HS256 tokens and honors the revocation list kept
// in the cache.
type Service struct {
	secret string
	cache  ports.Cache
	log    *zap.Logger
}

func NewService(secret string, cache ports.Cache, log *zap.Logger) ports.TokenValidator {
	return &Service{
		secret: secret,
		cache:  cache,
		log:    log,
	}
}

// ValidateToken parses and verifies a token, returning the identity it
// carries.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*ports.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		s.log.Debug("Token validation failed", zap.Error(err))
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if s.isRevoked(ctx, claims.ID) {
		return nil, fmt.Errorf("token has been revoked")
	}

	return &ports.TokenClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, nil
}

// Revoke blacklists a token id until it would have expired anyway.
func (s *Service) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	key := fmt.Sprintf("revoked_token:%s", tokenID)
	if err := s.cache.Set(ctx, key, "revoked", ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.log.Info("Token revoked", zap.String("token_id", tokenID))
	return nil
}

func (s *Service) isRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}
	val, err := s.cache.Get(ctx, fmt.Sprintf("revoked_token:%s", tokenID))
	if err != nil {
		return false
	}
	return val == "revoked"
}
