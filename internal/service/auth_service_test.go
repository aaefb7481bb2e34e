package service

import (
	"errors"
	"testing"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/auth"
	"github.com/gip-inclusion/geiq-assessments/internal/config"
	"github.com/gip-inclusion/geiq-assessments/internal/repository"
	"github.com/gip-inclusion/geiq-assessments/internal/testutil"
)

func newTestAuthService(env *testEnv) *AuthService {
	userRepo := repository.NewUserRepository(env.db)
	authSvc := auth.NewService(&config.JWTConfig{Expiration: time.Hour})
	return NewAuthService(userRepo, authSvc)
}

func TestLogin(t *testing.T) {
	env := setupEnv(t)
	authSvc := newTestAuthService(env)

	token, user, err := authSvc.Login("geiq@test.fr", "password")
	if err != nil {
		t.Fatalf("Failed to login: %v", err)
	}
	if token == "" {
		t.Error("Login should return a token")
	}
	if len(user.Roles) != 1 || user.Roles[0].Name != "geiq" {
		t.Errorf("Expected roles [geiq], got %v", user.Roles)
	}

	if _, _, err := authSvc.Login("geiq@test.fr", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := authSvc.Login("nobody@test.fr", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	env := setupEnv(t)
	authSvc := newTestAuthService(env)

	user := testutil.CreateUser(t, env.db, "inactive@test.fr", "geiq")
	if _, err := env.db.Exec("UPDATE users SET is_active = false WHERE id = $1", user.ID); err != nil {
		t.Fatalf("Failed to deactivate user: %v", err)
	}

	if _, _, err := authSvc.Login("inactive@test.fr", "password"); !errors.Is(err, ErrUserInactive) {
		t.Errorf("Expected ErrUserInactive, got %v", err)
	}
}
