package streams

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/gorm"
)

// HandleBriefEvent returns a handler that records completed briefs on the owning user
func HandleBriefEvent(db *gorm.DB) EventHandler {
	return func(ctx context.Context, event BriefEvent) error {
		return RecordBriefEvent(ctx, db, event)
	}
}

// RecordBriefEvent applies event to the user record. Only a newer generation
// timestamp replaces last_brief_at, so redelivered events are harmless.
func RecordBriefEvent(ctx context.Context, db *gorm.DB, event BriefEvent) error {
	switch event.Status {
	case EventBriefCompleted:
		result := db.WithContext(ctx).Model(&models.User{}).
			Where("id = ? AND (last_brief_at IS NULL OR last_brief_at < ?)", event.UserID, event.GeneratedAt).
			Update("last_brief_at", event.GeneratedAt)
		if result.Error != nil {
			return fmt.Errorf("failed to record brief on user: %w", result.Error)
		}

		slog.Info("Brief completed",
			"brief_id", event.BriefID,
			"user_id", event.UserID,
			"logs_count", event.LogsCount,
		)
	case EventBriefFailed:
		slog.Error("Brief failed",
			"brief_id", event.BriefID,
			"user_id", event.UserID,
			"error", event.Error,
		)
	default:
		return fmt.Errorf("unknown status: %s", event.Status)
	}
	return nil
}
