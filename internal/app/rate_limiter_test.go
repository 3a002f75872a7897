package app

import (
	"context"
	"testing"
	"time"
)

func TestConsumeRateLimitDisabled(t *testing.T) {
	var nilLimiter *RedisActionRateLimiter
	count, retry, err := nilLimiter.ConsumeRateLimit(context.Background(), "project.create", "user_1", 30, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected a nil limiter to be a no-op, got %d %d %v", count, retry, err)
	}

	limiter := NewRedisActionRateLimiter(nil, "")
	if limiter.prefix != "buildbuddy:rate_limit" {
		t.Fatalf("expected the default prefix, got %q", limiter.prefix)
	}
	count, _, err = limiter.ConsumeRateLimit(context.Background(), "project.create", "user_1", 30, time.Minute)
	if err != nil || count != 0 {
		t.Fatalf("expected a limiter without a client to be a no-op, got %d %v", count, err)
	}
}

func TestRateLimitKey(t *testing.T) {
	limiter := NewRedisActionRateLimiter(nil, " custom:prefix: ")
	got := rateLimitKey(limiter.prefix, "message.send", "user_1")
	if got != "custom:prefix:message.send:user_1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRetryAfterFromTTL(t *testing.T) {
	tests := []struct {
		name     string
		ttlMs    int64
		windowMs int64
		want     int
	}{
		{name: "rounds up", ttlMs: 1500, windowMs: 60000, want: 2},
		{name: "missing ttl uses window", ttlMs: -1, windowMs: 60000, want: 60},
		{name: "at least one second", ttlMs: 0, windowMs: 60000, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfterFromTTL(tt.ttlMs, tt.windowMs); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
