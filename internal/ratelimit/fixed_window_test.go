package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLimiter(t *testing.T, redis *miniredis.Miniredis, limit int) *FixedWindowLimiter {
	t.Helper()
	limiter, err := NewFixedWindowLimiter(Config{
		Addr:   redis.Addr(),
		Prefix: "test:ratelimit",
		Limit:  limit,
		Window: time.Minute,
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter
}

func TestFixedWindowLimiterPerOwner(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter := newTestLimiter(t, redis, 2)
	ctx := context.Background()

	if !limiter.Allow(ctx, "u1") || !limiter.Allow(ctx, "u1") {
		t.Fatalf("first two requests should pass")
	}
	if limiter.Allow(ctx, "u1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow(ctx, "u2") {
		t.Fatalf("another owner has its own quota")
	}
}

func TestFixedWindowLimiterResetsOnNextWindow(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter := newTestLimiter(t, redis, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if !limiter.Allow(ctx, "u1") {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow(ctx, "u1") {
		t.Fatalf("second request in window should be blocked")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "u1") {
		t.Fatalf("request in next window should pass")
	}
}

func TestFixedWindowLimiterFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter := newTestLimiter(t, redis, 1)
	redis.Close()
	if limiter.Allow(context.Background(), "u1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestNewFixedWindowLimiterValidation(t *testing.T) {
	tests := []Config{
		{Addr: "", Limit: 1, Window: time.Second},
		{Addr: "127.0.0.1:6379", Limit: 0, Window: time.Second},
		{Addr: "127.0.0.1:6379", Limit: 1, Window: 0},
	}
	for _, cfg := range tests {
		if limiter, err := NewFixedWindowLimiter(cfg); err == nil || limiter != nil {
			t.Fatalf("expected constructor error for %+v", cfg)
		}
	}
}
