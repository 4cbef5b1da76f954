package app

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"linkpage/api/internal/authpw"
)

// authFailure turns account errors into responses. Anything it does not
// recognise falls through to mapError.
func authFailure(err error, fallbackCode string) error {
	switch {
	case errors.Is(err, authpw.ErrEmailRegistered):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword),
		errors.Is(err, authpw.ErrInvalidToken):
		return domainError(http.StatusBadRequest, fallbackCode, err.Error(), nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return err
}

// decodeOrReject decodes the JSON body into target and answers 400 on failure.
func decodeOrReject(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !decodeOrReject(w, r, &body) {
		return
	}

	account, err := s.service.AuthPasswordService().SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.fail(w, authFailure(err, "SIGNUP_FAILED"))
		return
	}

	payload := map[string]any{"userId": account.UserID}
	if s.service.SMTPConfigured() {
		s.service.SendVerificationEmail(account.Email, strings.TrimSpace(body.DisplayName), account.VerificationToken)
		payload["message"] = "Check your inbox to confirm your email"
	} else {
		// Without mail the caller has no other way to learn the token.
		payload["devVerificationToken"] = account.VerificationToken
		payload["message"] = "Account created. Confirm your email to continue."
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeOrReject(w, r, &body) {
		return
	}

	result, err := s.service.AuthPasswordService().SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		s.fail(w, authFailure(err, "SIGNIN_FAILED"))
		return
	}
	if result.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Confirm your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), result.User.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeOrReject(w, r, &body) {
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token); err != nil {
		s.fail(w, authFailure(err, "VERIFICATION_FAILED"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// handleAuthRequestReset always answers 200 so the endpoint cannot be used to
// probe for registered emails.
func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeOrReject(w, r, &body) {
		return
	}

	token, user, err := s.service.AuthPasswordService().RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		log.Printf("password reset request failed: %v", err)
	}

	payload := map[string]any{"message": "If the account exists a reset link is on its way"}
	if token != "" {
		if s.service.SMTPConfigured() {
			s.service.SendPasswordResetEmail(user, token)
		} else {
			payload["devResetToken"] = token
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeOrReject(w, r, &body) {
		return
	}
	if err := s.service.AuthPasswordService().ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		s.fail(w, authFailure(err, "RESET_FAILED"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}
