// Package streams carries brief lifecycle events over a Redis stream so the
// API process and workers agree on each user's last brief time.
package streams

import (
	"context"
	"time"
)

const (
	// StreamBriefEvents is the stream every brief outcome is appended to
	StreamBriefEvents = "brief:events"
	// GroupBriefRecorders is the consumer group that folds events into user records
	GroupBriefRecorders = "brief-recorders"
	// SchemaVersionV1 tags the payload layout of BriefEvent
	SchemaVersionV1 = "v1"

	streamMaxLen = 10000
)

// Brief event statuses
const (
	EventBriefCompleted = "completed"
	EventBriefFailed    = "failed"
)

// BriefEvent announces that a weekly brief finished generating
type BriefEvent struct {
	BriefID     uint      `json:"brief_id"`
	UserID      uint      `json:"user_id"`
	Status      string    `json:"status"`
	WeekStart   time.Time `json:"week_start"`
	WeekEnd     time.Time `json:"week_end"`
	LogsCount   int       `json:"logs_count"`
	GeneratedAt time.Time `json:"generated_at"`
	Error       string    `json:"error,omitempty"`
}

// EventHandler applies one decoded event. A returned error leaves the message pending.
type EventHandler func(context.Context, BriefEvent) error
