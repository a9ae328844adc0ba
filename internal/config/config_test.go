package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("PORT", "")
	t.Setenv("BRIEF_MIN_LOGS", "")

	cfg := Load()

	if cfg.Port != "5000" {
		t.Errorf("expected default port 5000, got %s", cfg.Port)
	}
	if cfg.JWTSecret != devJWTSecret {
		t.Errorf("expected dev JWT secret fallback, got %q", cfg.JWTSecret)
	}
	if cfg.JWTExpiry != 15*time.Minute {
		t.Errorf("expected 15m access token expiry, got %s", cfg.JWTExpiry)
	}
	if cfg.BriefMinLogs != 1 {
		t.Errorf("expected min logs 1, got %d", cfg.BriefMinLogs)
	}
	if cfg.IsProduction() {
		t.Error("expected development environment by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "  s3cret\n")
	t.Setenv("REFRESH_TOKEN_EXPIRE", "30d")
	t.Setenv("JWT_EXPIRE", "1h")
	t.Setenv("EMBEDDED_WORKER", "true")

	cfg := Load()

	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("expected trimmed secret, got %q", cfg.JWTSecret)
	}
	if cfg.RefreshExpiry != 30*24*time.Hour {
		t.Errorf("expected 30 day refresh expiry, got %s", cfg.RefreshExpiry)
	}
	if cfg.JWTExpiry != time.Hour {
		t.Errorf("expected 1h access expiry, got %s", cfg.JWTExpiry)
	}
	if !cfg.EmbeddedWorker {
		t.Error("expected embedded worker enabled")
	}
}

func TestGetDurationWithDefaultInvalid(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	if got := getDurationWithDefault("SOME_DURATION", time.Minute); got != time.Minute {
		t.Errorf("expected fallback of 1m, got %s", got)
	}
}
