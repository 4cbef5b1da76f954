package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"linkpage/api/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	svc := NewService(mem)
	svc.bcryptCost = bcrypt.MinCost
	return svc, mem
}

// sequentialTokens makes generated tokens predictable.
func sequentialTokens(svc *Service, tokens ...string) {
	next := 0
	svc.generateToken = func() (string, error) {
		token := tokens[next%len(tokens)]
		next++
		return token, nil
	}
}

type failingCreateStore struct {
	*store.MemoryStore
	err error
}

func (f failingCreateStore) CreateUser(context.Context, store.User) error {
	return f.err
}

func signUp(t *testing.T, svc *Service, email string) *SignUpResponse {
	t.Helper()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       email,
		Password:    "correct-horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("SignUp(%s) error = %v", email, err)
	}
	return resp
}

func TestSignUpCreatesUnverifiedUser(t *testing.T) {
	svc, mem := newTestService(t)
	sequentialTokens(svc, "verify-1")

	resp := signUp(t, svc, "  Ada@Example.com ")
	if resp.Email != "ada@example.com" {
		t.Fatalf("expected normalised email, got %q", resp.Email)
	}
	if resp.VerificationToken != "verify-1" || !resp.RequiresEmailVerify {
		t.Fatalf("unexpected response %+v", resp)
	}

	user, err := mem.GetUserByID(context.Background(), resp.UserID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.IsEmailVerified {
		t.Fatal("new users must start unverified")
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password stored in clear text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestSignUpRejections(t *testing.T) {
	svc, _ := newTestService(t)
	signUp(t, svc, "taken@example.com")

	tests := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"missing email", SignUpRequest{Password: "correct-horse", DisplayName: "A"}, ErrMissingFields},
		{"missing name", SignUpRequest{Email: "a@example.com", Password: "correct-horse", DisplayName: "   "}, ErrMissingFields},
		{"short password", SignUpRequest{Email: "a@example.com", Password: "short", DisplayName: "A"}, ErrWeakPassword},
		{"duplicate email", SignUpRequest{Email: "TAKEN@example.com", Password: "correct-horse", DisplayName: "A"}, ErrEmailRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSignUpMapsStoreConflict(t *testing.T) {
	svc := NewService(failingCreateStore{MemoryStore: store.NewMemoryStore(), err: store.ErrEmailTaken})
	svc.bcryptCost = bcrypt.MinCost

	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "race@example.com", Password: "correct-horse", DisplayName: "R"})
	if !errors.Is(err, ErrEmailRegistered) {
		t.Fatalf("expected ErrEmailRegistered for a lost insert race, got %v", err)
	}

	svc = NewService(failingCreateStore{MemoryStore: store.NewMemoryStore(), err: errors.New("disk full")})
	svc.bcryptCost = bcrypt.MinCost
	_, err = svc.SignUp(context.Background(), SignUpRequest{Email: "race@example.com", Password: "correct-horse", DisplayName: "R"})
	if err == nil || errors.Is(err, ErrEmailRegistered) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestSignInChecksPasswordBeforeVerification(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	resp := signUp(t, svc, "ada@example.com")

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "wrong-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "correct-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty request: got %v", err)
	}

	result, err := svc.SignIn(ctx, SignInRequest{Email: "ADA@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if !result.RequiresVerify || result.User.ID != resp.UserID {
		t.Fatalf("unverified sign-in should report RequiresVerify, got %+v", result)
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	result, err = svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "correct-horse"})
	if err != nil || result.RequiresVerify {
		t.Fatalf("verified sign-in: result=%+v err=%v", result, err)
	}
}

func TestVerifyEmailTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	resp := signUp(t, svc, "ada@example.com")

	for _, token := range []string{"", "   ", "not-the-token"} {
		if err := svc.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("VerifyEmail(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tokens are single use, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	svc.verifyTTL = -time.Minute
	resp := signUp(t, svc, "ada@example.com")

	if err := svc.VerifyEmail(context.Background(), resp.VerificationToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signUp(t, svc, "ada@example.com")
	sequentialTokens(svc, "reset-1")

	token, user, err := svc.RequestPasswordReset(ctx, "Ada@Example.com")
	if err != nil || token != "reset-1" || user.Email != "ada@example.com" {
		t.Fatalf("RequestPasswordReset() = %q, %+v, %v", token, user, err)
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password: got %v", err)
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "battery-staple"}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "another-staple"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reset tokens are single use, got %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "correct-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should stop working, got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "ada@example.com", Password: "battery-staple"}); err != nil {
		t.Fatalf("new password should work, got %v", err)
	}
}

func TestPasswordResetUnknownEmailAndExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, user, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
	if err != nil || token != "" || user.ID != "" {
		t.Fatalf("unknown email should yield nothing, got %q %+v %v", token, user, err)
	}

	signUp(t, svc, "ada@example.com")
	svc.resetTTL = -time.Minute
	token, _, err = svc.RequestPasswordReset(ctx, "ada@example.com")
	if err != nil || token == "" {
		t.Fatalf("RequestPasswordReset() = %q, %v", token, err)
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "battery-staple"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired reset token: got %v", err)
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{NewPassword: "battery-staple"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing token: got %v", err)
	}
}
