package models

import (
	"time"

	"gorm.io/gorm"
)

// Brief status constants
const (
	BriefStatusGenerating = "generating"
	BriefStatusCompleted  = "completed"
	BriefStatusFailed     = "failed"
)

// WeeklyBrief is a generated summary and PDF covering one user's logs over a window.
// The partial unique index allows one live brief per (user, window).
type WeeklyBrief struct {
	gorm.Model
	UserID         uint      `gorm:"not null;uniqueIndex:idx_weekly_briefs_user_window,where:deleted_at IS NULL,priority:1"`
	User           User      `gorm:"constraint:OnDelete:CASCADE;"`
	WeekStart      time.Time `gorm:"not null;uniqueIndex:idx_weekly_briefs_user_window,where:deleted_at IS NULL,priority:2"`
	WeekEnd        time.Time `gorm:"not null;uniqueIndex:idx_weekly_briefs_user_window,where:deleted_at IS NULL,priority:3"`
	SummaryIV      string    `gorm:"column:summary_iv;type:text"`
	SummaryContent string    `gorm:"column:summary_content;type:text"`
	ArtifactPath   string    `gorm:"column:artifact_path;type:text"`
	Status         string    `gorm:"not null;default:'generating';index"`
	ErrorMessage   string    `gorm:"column:error_message;type:text"`
	LogsCount      int       `gorm:"not null;default:0"`
	GeneratedAt    *time.Time
}
