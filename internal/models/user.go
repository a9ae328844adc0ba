package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan is a subscription tier controlling feature access
type Plan string

// Plan constants
const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanCoach Plan = "coach"
)

// SubscriptionStatus mirrors the payment processor's subscription state
type SubscriptionStatus string

// Subscription status constants
const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionNone     SubscriptionStatus = "none"
)

// ValidPlan reports whether p is one of the known plans
func ValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanPro, PlanCoach:
		return true
	}
	return false
}

// ValidSubscriptionStatus reports whether s is one of the known statuses
func ValidSubscriptionStatus(s SubscriptionStatus) bool {
	switch s {
	case SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled, SubscriptionTrialing, SubscriptionNone:
		return true
	}
	return false
}

// User represents an account holder with billing state and preferences
type User struct {
	gorm.Model
	Email                string  `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name                 string  `gorm:"not null;default:''"`
	PasswordHash         string  `gorm:"not null"`
	StripeCustomerID     *string `gorm:"index"`
	StripeSubscriptionID *string
	SubscriptionPlan     Plan               `gorm:"not null;default:'free'"`
	SubscriptionStatus   SubscriptionStatus `gorm:"not null;default:'none'"`
	SubscriptionEndDate  *time.Time
	PrivacyLocalFirst    bool `gorm:"not null;default:true"`
	Notifications        bool `gorm:"not null;default:true"`
	LastLoginAt          *time.Time
	LastBriefAt          *time.Time

	// Associations
	LogEntries   []LogEntry    `gorm:"constraint:OnDelete:CASCADE;"`
	WeeklyBriefs []WeeklyBrief `gorm:"constraint:OnDelete:CASCADE;"`
}

// DisplayName returns the name shown on generated documents, falling back to the email
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// HasActiveSubscription reports whether the subscription currently grants paid features
func (u *User) HasActiveSubscription() bool {
	return u.SubscriptionStatus == SubscriptionActive || u.SubscriptionStatus == SubscriptionTrialing
}
