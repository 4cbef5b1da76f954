package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linkpage/api/internal/ratelimit"
)

func TestRateLimitThrottlesPerCaller(t *testing.T) {
	server, _, _ := newTestServer(t)
	server.SetRateLimiters(ratelimit.NewMemory(2, time.Minute), ratelimit.NewMemory(1, time.Minute))

	get := func(path, forwardedFor string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		return serve(t, server, req)
	}

	for i := 0; i < 2; i++ {
		if rr, _ := get("/api/public/ada", "203.0.113.7, 10.0.0.1"); rr.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d should not be throttled", i)
		}
	}
	rr, payload := get("/api/public/ada", "203.0.113.7")
	assertErrorCode(t, rr, payload, http.StatusTooManyRequests, "RATE_LIMITED")
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if rr, _ := get("/api/public/ada", "198.51.100.2"); rr.Code == http.StatusTooManyRequests {
		t.Fatal("another caller should have its own budget")
	}

	// Slug checks draw from their own budget.
	if rr, _ := get("/api/slug/check?slug=grace", "203.0.113.7"); rr.Code != http.StatusOK {
		t.Fatalf("slug check should use its own budget, got %d", rr.Code)
	}
	rr, payload = get("/api/slug/check?slug=grace", "203.0.113.7")
	assertErrorCode(t, rr, payload, http.StatusTooManyRequests, "RATE_LIMITED")

	// Health is never throttled.
	if rr, _ := get("/api/health", "203.0.113.7"); rr.Code != http.StatusOK {
		t.Fatalf("health should not be throttled, got %d", rr.Code)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	server, _, _ := newTestServer(t)
	server.SetRateLimiters(brokenLimiter{}, brokenLimiter{})

	rr, _ := doJSON(t, server, http.MethodGet, "/api/slug/check?slug=grace", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to pass when the limiter fails, got %d", rr.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientKey(req); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded entry, got %q", got)
	}
}
