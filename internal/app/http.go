package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"linkpage/api/internal/auth"
	"linkpage/api/internal/ratelimit"
	"linkpage/api/internal/validate"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	apiLimit   ratelimit.Limiter
	slugLimit  ratelimit.Limiter
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

// SetRateLimiters installs per-caller budgets. A nil limiter disables that
// budget. Slug checks count against slug only.
func (s *HTTPServer) SetRateLimiters(api, slug ratelimit.Limiter) {
	s.apiLimit = api
	s.slugLimit = slug
}

func (s *HTTPServer) Handler() http.Handler {
	return gzhttp.GzipHandler(s.withMiddleware(s.withRateLimit(http.HandlerFunc(s.handle))))
}

// handle routes public endpoints first; everything after requireSession
// needs a valid access token.
func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	if r.Method == http.MethodHead {
		route = http.MethodGet + " " + r.URL.Path
	}

	switch route {
	case "GET /api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case "GET /api/ready":
		s.handleReady(w, r)
		return
	case "POST /api/auth/signup":
		s.handleAuthSignUp(w, r)
		return
	case "POST /api/auth/signin":
		s.handleAuthSignIn(w, r)
		return
	case "POST /api/auth/verify-email":
		s.handleAuthVerifyEmail(w, r)
		return
	case "POST /api/auth/reset-password/request":
		s.handleAuthRequestReset(w, r)
		return
	case "POST /api/auth/reset-password":
		s.handleAuthResetPassword(w, r)
		return
	case "GET /api/session":
		s.handleWhoAmI(w, r)
		return
	case "POST /api/session/refresh":
		s.handleRefresh(w, r)
		return
	case "POST /api/session/logout":
		s.handleLogout(w, r)
		return
	case "GET /api/slug/check":
		s.handleCheckSlug(w, r)
		return
	case "GET /api/search":
		s.handleSearch(w, r)
		return
	}
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	parts := splitPath(r.URL.Path)
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "public" {
		s.handlePublicPage(w, r, parts[2])
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch route {
	case "GET /api/profile":
		s.handleGetProfile(w, r, session)
		return
	case "POST /api/profile":
		s.handleCreateProfile(w, r, session)
		return
	case "PUT /api/profile":
		s.handleUpdateProfile(w, r, session)
		return
	case "PUT /api/profile/avatar":
		s.handleUploadAvatar(w, r, session)
		return
	case "POST /api/items":
		s.handleCreateItem(w, r, session)
		return
	case "PUT /api/items/reorder":
		s.handleReorderItems(w, r, session)
		return
	}
	if r.Method == http.MethodDelete && len(parts) == 3 && parts[0] == "api" && parts[1] == "items" {
		s.handleDeleteItem(w, r, session, parts[2])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func logFailure(r *http.Request, what string, err error) {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	log.Printf("%s failed (request %s): %v", what, requestID, err)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

// withRateLimit charges API requests to the caller's budget. Limiter errors
// let the request through.
func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.limiterFor(r)
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		decision, err := limiter.Allow(r.Context(), clientKey(r))
		if err != nil {
			log.Printf("ratelimit: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		header := w.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int(time.Until(decision.ResetAt).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			header.Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later", map[string]any{"retryAfter": retryAfter})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) limiterFor(r *http.Request) ratelimit.Limiter {
	if r.Method == http.MethodOptions {
		return nil
	}
	switch {
	case r.URL.Path == "/api/health" || r.URL.Path == "/api/ready":
		return nil
	case r.URL.Path == "/api/slug/check":
		return s.slugLimit
	case strings.HasPrefix(r.URL.Path, "/api/"):
		return s.apiLimit
	}
	return nil
}

// clientKey is the first X-Forwarded-For entry, else the remote host.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(w http.ResponseWriter, raw, name string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer",
			&validate.FieldError{Field: name, Reason: "must be an integer"})
		return 0, false
	}
	return parsed, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var fieldErr *validate.FieldError
	if errors.As(err, &fieldErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", fieldErr.Error(), fieldErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
