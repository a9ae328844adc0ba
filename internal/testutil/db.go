// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an isolated in-memory SQLite database with the application schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and serializes writes
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.LogEntry{}, &models.WeeklyBrief{}, &models.BillingEvent{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

// CreateUser inserts a user with the given plan and status.
func CreateUser(t *testing.T, db *gorm.DB, email string, plan models.Plan, status models.SubscriptionStatus) *models.User {
	t.Helper()

	user := &models.User{
		Email:              email,
		Name:               strings.Split(email, "@")[0],
		PasswordHash:       "not-a-real-hash",
		SubscriptionPlan:   plan,
		SubscriptionStatus: status,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}

// LogOption customizes a log entry created by CreateLog.
type LogOption func(*models.LogEntry, *models.LogMeta)

// WithIntensity sets meta.intensity.
func WithIntensity(n int) LogOption {
	return func(_ *models.LogEntry, m *models.LogMeta) { m.Intensity = &n }
}

// WithTone sets the entry tone.
func WithTone(tone models.Tone) LogOption {
	return func(e *models.LogEntry, _ *models.LogMeta) { e.Tone = tone }
}

// WithTags sets meta.tags.
func WithTags(tags ...string) LogOption {
	return func(_ *models.LogEntry, m *models.LogMeta) { m.Tags = tags }
}

// CreateLog inserts a log entry owned by userID at the given time.
func CreateLog(t *testing.T, db *gorm.DB, userID uint, logType models.LogType, text string, at time.Time, opts ...LogOption) *models.LogEntry {
	t.Helper()

	entry := &models.LogEntry{UserID: userID, Type: logType, Text: text}
	var meta models.LogMeta
	for _, opt := range opts {
		opt(entry, &meta)
	}
	entry.Meta = datatypes.NewJSONType(meta)
	entry.CreatedAt = at.UTC()

	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("failed to create log entry: %v", err)
	}
	return entry
}
