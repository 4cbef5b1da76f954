package app

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 5 * time.Second

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	database := map[string]any{"status": "ok"}
	code := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		database = map[string]any{"status": "error", "error": err.Error()}
		code = http.StatusServiceUnavailable
	}
	state := "ready"
	if code != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, code, map[string]any{
		"ok":     code == http.StatusOK,
		"status": state,
		"checks": map[string]any{"database": database},
	})
}

// handleWhoAmI never fails: a missing or bad token is reported as anonymous.
func (s *HTTPServer) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	anonymous := map[string]any{"authenticated": false, "userName": nil}
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.UserName,
		"email":         session.Email,
	})
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !decodeOrReject(w, r, &body) {
		return
	}
	rotated, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		// Expired, revoked and unknown tokens all look the same to the caller.
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(rotated))
}

// handleLogout revokes whatever it is given and always succeeds.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var current Session
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			current = parsed
		}
	}
	var body refreshBody
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), current, body.RefreshToken); err != nil {
		logFailure(r, "logout", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt.Unix(),
		"userId":       session.UserID,
		"userName":     session.UserName,
	}
}
