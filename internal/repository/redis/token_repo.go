package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/database"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/constants"
)

// TokenBlacklistRepository stores revoked token ids written by the identity provider
type TokenBlacklistRepository struct {
	client *database.RedisClient
}

// NewTokenBlacklistRepository creates a new TokenBlacklistRepository
func NewTokenBlacklistRepository(client *database.RedisClient) *TokenBlacklistRepository {
	return &TokenBlacklistRepository{client: client}
}

// Revoke blacklists a token id until ttl elapses
func (r *TokenBlacklistRepository) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := r.client.SafeSet(ctx, constants.TokenBlacklistPrefix+tokenID, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token id is blacklisted
func (r *TokenBlacklistRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := r.client.SafeExists(ctx, constants.TokenBlacklistPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}
	return exists > 0, nil
}
