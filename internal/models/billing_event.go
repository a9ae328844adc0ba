package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingEvent records a processed payment-processor webhook so redeliveries are ignored
type BillingEvent struct {
	ID          uint           `gorm:"primaryKey"`
	EventID     string         `gorm:"uniqueIndex;not null"`
	Type        string         `gorm:"not null;index"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	ProcessedAt time.Time      `gorm:"not null"`
}
