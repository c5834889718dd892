// Package session implements the provider-managed session store and the
// token revocation list, both backed by Redis.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no live session exists for a credential
	ErrNotFound = errors.New("session not found")

	// ErrUnavailable is returned when the session provider cannot be reached
	ErrUnavailable = errors.New("session provider unavailable")
)

const credentialBytes = 32

// Session is the record stored by the provider for an opaque credential.
type Session struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PlanType   string    `json:"plan_type"`
	PlanStatus string    `json:"plan_status"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RedisStore keeps sessions under <prefix>:<sha256(credential)> so the raw
// credential never reaches Redis.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a session store on the given client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

// Create stores sess for ttl and returns the new opaque credential.
func (s *RedisStore) Create(ctx context.Context, sess *Session, ttl time.Duration) (string, error) {
	if sess == nil || sess.UserID == "" {
		return "", fmt.Errorf("session user is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("session ttl must be positive")
	}

	credential, err := newCredential()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	stored := *sess
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(credential), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	*sess = stored
	return credential, nil
}

// Get returns the live session for credential.
func (s *RedisStore) Get(ctx context.Context, credential string) (*Session, error) {
	if credential == "" {
		return nil, ErrNotFound
	}

	key := s.key(credential)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.UserID == "" {
		_ = s.redis.Del(ctx, key).Err()
		return nil, fmt.Errorf("%w: corrupt session record", ErrNotFound)
	}

	if !sess.ExpiresAt.IsZero() && s.now().After(sess.ExpiresAt) {
		_ = s.redis.Del(ctx, key).Err()
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *RedisStore) Delete(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(credential)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks connectivity to the provider.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func newCredential() (string, error) {
	b := make([]byte, credentialBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
