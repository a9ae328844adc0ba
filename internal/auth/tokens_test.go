package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)

	access, err := svc.GenerateAccessToken(42)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	claims, err := svc.ValidateAccessToken(access)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("expected user 42, got %d", claims.UserID)
	}

	refresh, err := svc.GenerateRefreshToken(42)
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if _, err := svc.ValidateRefreshToken(refresh); err != nil {
		t.Errorf("ValidateRefreshToken: %v", err)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)

	refresh, _ := svc.GenerateRefreshToken(1)
	if _, err := svc.ValidateAccessToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected refresh token to be rejected as access token, got %v", err)
	}

	access, _ := svc.GenerateAccessToken(1)
	if _, err := svc.ValidateRefreshToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected access token to be rejected as refresh token, got %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := svc.GenerateAccessToken(7)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenService("one", "one-refresh", time.Minute, time.Hour)
	verifier := NewTokenService("two", "two-refresh", time.Minute, time.Hour)

	token, _ := issuer.GenerateAccessToken(3)
	if _, err := verifier.ValidateAccessToken(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}
	if _, err := verifier.ValidateAccessToken("not.a.jwt"); err == nil {
		t.Error("expected garbage token to be rejected")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("expected hash to differ from password")
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "battery staple") {
		t.Error("expected wrong password to fail")
	}
}
