package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisActionRateLimiter limits how often a user can trigger credit-debiting actions.
// The counters are shared by every replica of the service.
type RedisActionRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisActionRateLimiter(client redis.UniversalClient, prefix string) *RedisActionRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "buildbuddy:rate_limit"
	}

	return &RedisActionRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// ConsumeRateLimit counts one hit for subject within scope. A nil limiter, a nil client
// or a non-positive limit disables limiting.
func (r *RedisActionRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil {
		return 0, 0, nil
	}
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	// Windows are at least one second.
	windowMs := max(window.Milliseconds(), 1000)

	reply, err := fixedWindowScript.Run(ctx, r.client, []string{rateLimitKey(r.prefix, scope, subject)}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(reply))
	}

	hits, ttlMs := reply[0], reply[1]
	return int(hits), retryAfterFromTTL(ttlMs, windowMs), nil
}

func rateLimitKey(prefix, scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, scope, subject)
}

func retryAfterFromTTL(ttlMs, windowMs int64) int {
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return max(int(math.Ceil(float64(ttlMs)/1000)), 1)
}
