package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/config"
)

func testService(expiration time.Duration) *Service {
	return NewService(&config.JWTConfig{Expiration: expiration})
}

func TestHashPassword(t *testing.T) {
	svc := testService(24 * time.Hour)

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if hash == "" {
		t.Error("Hash should not be empty")
	}

	if hash == password {
		t.Error("Hash should not equal the original password")
	}
}

func TestVerifyPassword(t *testing.T) {
	svc := testService(24 * time.Hour)

	password := "testpassword123"
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	if err := svc.VerifyPassword(hash, password); err != nil {
		t.Errorf("Should verify correct password, got error: %v", err)
	}

	if err := svc.VerifyPassword(hash, "wrongpassword"); err == nil {
		t.Error("Should not verify incorrect password")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := testService(24 * time.Hour)

	userID := uint(1)
	email := "geiq@example.com"
	roles := []string{"geiq"}

	token, err := svc.GenerateToken(userID, email, roles)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Token should not be empty")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("Expected user ID %d, got %d", userID, claims.UserID)
	}
	if claims.Email != email {
		t.Errorf("Expected email %s, got %s", email, claims.Email)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "geiq" {
		t.Errorf("Expected roles [geiq], got %v", claims.Roles)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := testService(-1 * time.Hour) // already expired

	token, err := svc.GenerateToken(1, "geiq@example.com", nil)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = svc.ValidateToken(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateTokenFromAnotherKey(t *testing.T) {
	token, err := testService(time.Hour).GenerateToken(1, "geiq@example.com", nil)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	// A service with a different generated key pair must reject it
	if _, err := testService(time.Hour).ValidateToken(token); err == nil {
		t.Error("Should reject token signed by another key")
	}
}
