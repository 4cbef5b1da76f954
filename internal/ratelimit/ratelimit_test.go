package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryFixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemory(3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		decision, _ := limiter.Allow(ctx, "10.0.0.1")
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Remaining != 3-i {
			t.Fatalf("expected remaining %d, got %d", 3-i, decision.Remaining)
		}
	}

	decision, _ := limiter.Allow(ctx, "10.0.0.1")
	if decision.Allowed {
		t.Fatal("fourth request should be throttled")
	}
	if !decision.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected reset time %v", decision.ResetAt)
	}

	other, _ := limiter.Allow(ctx, "10.0.0.2")
	if !other.Allowed {
		t.Fatal("other callers have their own budget")
	}

	now = now.Add(time.Minute)
	decision, _ = limiter.Allow(ctx, "10.0.0.1")
	if !decision.Allowed || decision.Remaining != 2 {
		t.Fatalf("expected a fresh window, got %+v", decision)
	}
}

func TestMemorySweepsEndedWindows(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	limiter := NewMemory(1, time.Second)
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Allow(ctx, "a")
	_, _ = limiter.Allow(ctx, "b")
	now = now.Add(2 * time.Second)
	_, _ = limiter.Allow(ctx, "c")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.windows) != 1 {
		t.Fatalf("expected only the live window, got %d", len(limiter.windows))
	}
}

func TestRedisFixedWindow(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	limiter := NewRedis(client, "api", 2, time.Minute)

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	decision, err := limiter.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("third request should be throttled, got %+v", decision)
	}
	if ttl := s.TTL("linkpage:ratelimit:api:10.0.0.1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected counter to expire within the window, got %v", ttl)
	}

	s.FastForward(time.Minute)
	decision, err = limiter.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected a fresh window after expiry")
	}
}

func TestRedisBudgetsAreNamespaced(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	api := NewRedis(client, "api", 1, time.Minute)
	slug := NewRedis(client, "slug", 1, time.Minute)

	if d, _ := api.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("api budget should allow first request")
	}
	if d, _ := slug.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("slug budget is independent of the api budget")
	}
}

func TestRedisErrorsSurface(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	if _, err := NewRedis(client, "api", 1, time.Minute).Allow(context.Background(), "k"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
