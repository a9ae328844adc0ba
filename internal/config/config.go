package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env       string
	Port      string
	AppURL    string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	JWTSecret     string
	JWTExpiry     time.Duration
	RefreshSecret string
	RefreshExpiry time.Duration
	SessionSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePrices        StripePrices
	PlansFile           string

	StorageBackend string // "local" or "s3"
	UploadsDir     string
	S3Bucket       string
	S3Prefix       string

	BriefSchedule  string
	BriefTimezone  string
	BriefMinLogs   int
	EmbeddedWorker bool
}

// StripePrices holds the Stripe price IDs offered on the pricing page
type StripePrices struct {
	ProMonthly   string
	ProYearly    string
	CoachMonthly string
	CoachYearly  string
}

const (
	devJWTSecret     = "dev-jwt-secret-change-in-production"
	devRefreshSecret = "dev-refresh-secret-change-in-production"
	devSessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
)

// Load reads configuration from environment variables, after loading a .env file if present
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		Env:       getEnvWithDefault("ENV", "development"),
		Port:      getEnvWithDefault("PORT", "5000"),
		AppURL:    getEnvWithDefault("APP_URL", "http://localhost:3000"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTExpiry:     getDurationWithDefault("JWT_EXPIRE", 15*time.Minute),
		RefreshSecret: strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET")),
		RefreshExpiry: getDurationWithDefault("REFRESH_TOKEN_EXPIRE", 7*24*time.Hour),
		SessionSecret: os.Getenv("SESSION_SECRET"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePrices: StripePrices{
			ProMonthly:   os.Getenv("STRIPE_PRICE_PRO_MONTHLY"),
			ProYearly:    os.Getenv("STRIPE_PRICE_PRO_YEARLY"),
			CoachMonthly: os.Getenv("STRIPE_PRICE_COACH_MONTHLY"),
			CoachYearly:  os.Getenv("STRIPE_PRICE_COACH_YEARLY"),
		},
		PlansFile: os.Getenv("PLANS_FILE"),

		StorageBackend: getEnvWithDefault("STORAGE_BACKEND", "local"),
		UploadsDir:     getEnvWithDefault("UPLOADS_DIR", "uploads/briefs"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Prefix:       getEnvWithDefault("S3_PREFIX", "briefs/"),

		BriefSchedule:  getEnvWithDefault("BRIEF_SCHEDULE", "0 6 * * 1"),
		BriefTimezone:  getEnvWithDefault("BRIEF_TIMEZONE", "UTC"),
		BriefMinLogs:   getIntWithDefault("BRIEF_MIN_LOGS", 1),
		EmbeddedWorker: getBoolWithDefault("EMBEDDED_WORKER", false),
	}

	// Warn if using default secrets (insecure for production)
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
		slog.Warn("Using default JWT_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = devRefreshSecret
		slog.Warn("Using default REFRESH_TOKEN_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = devSessionSecret
		slog.Warn("Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	return cfg
}

// IsProduction reports whether error details should be hidden from clients
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationWithDefault accepts Go durations ("15m") and the day suffix used by
// the token settings ("7d").
func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
