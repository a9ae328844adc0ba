package database

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/mediecho/internal/auth"
	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Development credentials created by SeedDevData
const (
	DevUserEmail    = "dev@mediecho.local"
	DevUserPassword = "password123"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB, now time.Time) error {
	// Check if seed data already exists
	var existingUser models.User
	result := db.Where("email = ?", DevUserEmail).First(&existingUser)
	if result.Error == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check for seed user: %w", result.Error)
	}

	hash, err := auth.HashPassword(DevUserPassword)
	if err != nil {
		return err
	}

	// Create test user on the pro plan so brief generation is unlocked
	user := models.User{
		Email:              DevUserEmail,
		Name:               "Dev User",
		PasswordHash:       hash,
		SubscriptionPlan:   models.PlanPro,
		SubscriptionStatus: models.SubscriptionActive,
		PrivacyLocalFirst:  true,
		Notifications:      true,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}

	intensity := func(n int) *int { return &n }
	samples := []struct {
		daysAgo int
		logType models.LogType
		text    string
		tone    models.Tone
		meta    models.LogMeta
	}{
		{6, models.LogTypeSymptom, "Woke up with a tension headache behind the eyes.", models.ToneNegative, models.LogMeta{Intensity: intensity(6), Tags: []string{"headache", "morning"}}},
		{5, models.LogTypeFitness, "30 minute easy run around the park.", models.TonePositive, models.LogMeta{Intensity: intensity(4), Tags: []string{"running"}}},
		{4, models.LogTypeFood, "Skipped lunch, big dinner late at night.", models.ToneNeutral, models.LogMeta{Tags: []string{"meals"}}},
		{3, models.LogTypeSymptom, "Sharp migraine with light sensitivity, had to lie down.", models.ToneAnxious, models.LogMeta{Intensity: intensity(9), Tags: []string{"headache", "migraine"}}},
		{2, models.LogTypeMood, "Feeling calmer after a good night of sleep.", models.ToneCalm, models.LogMeta{Intensity: intensity(3)}},
		{1, models.LogTypeSymptom, "Mild headache in the afternoon.", models.ToneNegative, models.LogMeta{Intensity: intensity(5), Tags: []string{"headache"}}},
	}

	for _, s := range samples {
		entry := models.LogEntry{
			UserID: user.ID,
			Type:   s.logType,
			Text:   s.text,
			Tone:   s.tone,
			Meta:   datatypes.NewJSONType(s.meta),
		}
		entry.CreatedAt = now.AddDate(0, 0, -s.daysAgo)
		if err := db.Create(&entry).Error; err != nil {
			return err
		}
	}

	slog.Info("Seeded dev data", "users", 1, "log_entries", len(samples), "email", DevUserEmail)
	return nil
}
