package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationList records logged-out token ids until the tokens would
// have expired anyway.
type RedisRevocationList struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRevocationList creates a revocation list sharing the store's key prefix.
func NewRedisRevocationList(client redis.UniversalClient, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisRevocationList{redis: client, prefix: prefix}
}

func (l *RedisRevocationList) key(tokenID string) string {
	return l.prefix + ":revoked:" + tokenID
}

// Revoke marks tokenID as revoked for ttl. A non-positive ttl means the token
// is already expired and nothing is written.
func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return fmt.Errorf("token id is required")
	}
	if ttl <= 0 {
		return nil
	}
	if err := l.redis.Set(ctx, l.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := l.redis.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
