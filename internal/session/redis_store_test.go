package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

func TestRefreshSessionLifecycle(t *testing.T) {
	rs, _ := newTestStore(t)
	ctx := context.Background()

	if err := rs.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "hash-a", "usr_a", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "hash-b", "usr_b", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}

	for hash, want := range map[string]string{"hash-a": "usr_a", "hash-b": "usr_b"} {
		owner, err := rs.LookupRefreshSession(ctx, hash)
		if err != nil {
			t.Fatalf("LookupRefreshSession(%s) error = %v", hash, err)
		}
		if owner.ID != want {
			t.Fatalf("LookupRefreshSession(%s) = %s, want %s", hash, owner.ID, want)
		}
	}

	if err := rs.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("RevokeRefreshSession() error = %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("revoked session: got %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-b"); err != nil {
		t.Fatalf("revoking one session must not touch another: %v", err)
	}

	// Revoking twice is not an error.
	if err := rs.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("second revoke error = %v", err)
	}
}

func TestRefreshSessionExpiresWithKey(t *testing.T) {
	rs, mr := newTestStore(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash", "usr_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "linkpage:refresh:") {
		t.Fatalf("expected one namespaced key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within a minute, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := rs.LookupRefreshSession(ctx, "hash"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session: got %v", err)
	}
}

func TestPastExpiryFallsBackToDefaultTTL(t *testing.T) {
	rs, mr := newTestStore(t)
	if err := rs.SaveRefreshSession(context.Background(), "hash", "usr_1", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if ttl := mr.TTL("linkpage:refresh:hash"); ttl != defaultTTL {
		t.Fatalf("expected default ttl %v, got %v", defaultTTL, ttl)
	}
}

func TestLookupRejectsCorruptPayload(t *testing.T) {
	rs, mr := newTestStore(t)
	if err := mr.Set("linkpage:refresh:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := rs.LookupRefreshSession(context.Background(), "bad")
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestSharedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rs := NewRedisStoreWithClient(client)
	if err := rs.SaveRefreshSession(context.Background(), "hash", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if !mr.Exists("linkpage:refresh:hash") {
		t.Fatal("expected key written through the shared client")
	}
}

func TestDialFailures(t *testing.T) {
	if _, err := Dial(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := Dial(context.Background(), "redis://"+addr); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}
