package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gatewise/gatewise/internal/shared"
)

// TokenStore keeps opaque bearer tokens in Redis. A token maps to the
// holder's user ID; everything else about the caller is resolved from
// the directory on each request so revoked permissions take effect
// immediately.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a fresh token for the user.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.redisKey(token), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w: %v", shared.ErrStoreUnavailable, err)
	}
	return token, nil
}

// Resolve maps a presented token back to a user ID.
func (s *TokenStore) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("auth: empty token: %w", shared.ErrUnauthenticated)
	}
	raw, err := s.client.Get(ctx, s.redisKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("auth: unknown or expired token: %w", shared.ErrUnauthenticated)
		}
		return 0, fmt.Errorf("auth: resolve token: %w: %v", shared.ErrStoreUnavailable, err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth: corrupt token record: %w", shared.ErrUnauthenticated)
	}
	return id, nil
}

// Revoke deletes a token. Revoking an unknown token is not an error.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: revoke token: %w: %v", shared.ErrStoreUnavailable, err)
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

func (s *TokenStore) redisKey(token string) string {
	return "token:" + token
}
