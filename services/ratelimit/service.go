package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// The counter expires one window after the first attempt, so the window is
// fixed and a blocked caller is released when the key expires.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// Decision is the outcome of counting one attempt
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long the caller should wait, rounded up to a whole second
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	if rounded := wait.Truncate(time.Second); rounded < wait {
		return rounded + time.Second
	}
	return wait
}

// RateLimitService counts login attempts per email and client address in Redis
type RateLimitService struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewRateLimitService creates a new RateLimitService. A zero attempt limit disables it.
func NewRateLimitService(client redis.UniversalClient, prefix string, cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitService {
	window := cfg.LoginWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimitService{
		client: client,
		prefix: prefix + ":ratelimit:",
		limit:  cfg.LoginAttempts,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Enabled reports whether attempts are counted at all
func (s *RateLimitService) Enabled() bool {
	return s.limit > 0
}

// CheckLimit counts one attempt for key and reports whether it is within the limit
func (s *RateLimitService) CheckLimit(ctx context.Context, key string) (*Decision, error) {
	if !s.Enabled() {
		return &Decision{Allowed: true}, nil
	}

	res, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, s.window.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return nil, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = s.window.Milliseconds()
	}

	decision := &Decision{
		Allowed:   int(count) <= s.limit,
		Count:     int(count),
		Limit:     s.limit,
		Remaining: s.limit - int(count),
		ResetAt:   s.now().Add(time.Duration(ttlMs) * time.Millisecond),
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if !decision.Allowed {
		s.logger.Debug("rate limit exceeded", zap.String("key", key), zap.Int("count", decision.Count))
	}
	return decision, nil
}

// Reset forgets the attempts counted for key
func (s *RateLimitService) Reset(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// LoginKey scopes login attempts to one account from one address
func LoginKey(email, ip string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(email)) + "|" + ip
}
