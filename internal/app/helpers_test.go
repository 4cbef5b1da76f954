package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linkpage/api/internal/config"
	"linkpage/api/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		PublicURL:  "https://linkpage.test",
	}
}

func newTestServer(t *testing.T) (*HTTPServer, *Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	svc := New(testConfig(), mem)
	return NewHTTPServer(svc, "*"), svc, mem
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, payload
}

// signIn registers, verifies and signs in a user, returning the access token.
func signIn(t *testing.T, server *HTTPServer, email string) string {
	t.Helper()
	rr, payload := doJSON(t, server, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       email,
		"password":    "correct-horse",
		"displayName": "Ada",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	token, _ := payload["devVerificationToken"].(string)
	if token == "" {
		t.Fatalf("signup: expected devVerificationToken, got %v", payload)
	}
	if rr, _ := doJSON(t, server, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"token": token}); rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr, payload = doJSON(t, server, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    email,
		"password": "correct-horse",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	access, _ := payload["accessToken"].(string)
	if access == "" {
		t.Fatalf("signin: expected accessToken")
	}
	return access
}

func createProfile(t *testing.T, server *HTTPServer, token, slug string) map[string]any {
	t.Helper()
	rr, payload := doJSON(t, server, http.MethodPost, "/api/profile", token, map[string]any{"slug": slug, "displayName": "Ada"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create profile: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	profile, _ := payload["profile"].(map[string]any)
	return profile
}

func createItem(t *testing.T, server *HTTPServer, token string, body map[string]any) map[string]any {
	t.Helper()
	rr, payload := doJSON(t, server, http.MethodPost, "/api/items", token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	item, _ := payload["item"].(map[string]any)
	return item
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, payload map[string]any, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
}

func assertUnauthorizedCode(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected code UNAUTHORIZED, got %v", payload["code"])
	}
}

func serve(t *testing.T, server *HTTPServer, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	var payload map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, payload
}
