// Package domain contains persistence models for workspace subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusTrialing Status = "TRIALING"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusPaused   Status = "PAUSED"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCanceled }

// Entitled reports whether the subscription grants its bundles' capabilities
// and quotas in this state.
func (s Status) Entitled() bool { return s == StatusActive || s == StatusTrialing }

// PlanTier selects the fee schedule and billing model layered over bundles.
type PlanTier string

const (
	TierStandard   PlanTier = "standard"
	TierEnterprise PlanTier = "enterprise"
)

// Subscription captures a workspace's billing agreement. Exactly one row
// exists per workspace; the unique index enforces it.
type Subscription struct {
	ID                  snowflake.ID      `gorm:"primaryKey"`
	WorkspaceID         string            `gorm:"type:text;not null;uniqueIndex"`
	Status              Status            `gorm:"type:text;not null"`
	PlanTier            PlanTier          `gorm:"type:text;not null"`
	Interval            cycle.Interval    `gorm:"type:text;not null"`
	AnchorAt            time.Time         `gorm:"not null"`
	TrialEndsAt         *time.Time        `gorm:""`
	PaymentMethodOnFile bool              `gorm:"not null;default:false"`
	CreditMinor         int64             `gorm:"not null;default:0"`
	ChargeAttempts      int               `gorm:"not null;default:0"`
	FirstFailedAt       *time.Time        `gorm:""`
	PausedAt            *time.Time        `gorm:""`
	ResumedAt           *time.Time        `gorm:""`
	CanceledAt          *time.Time        `gorm:""`
	Version             int64             `gorm:"not null;default:1"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionBundle is one bundle in a subscription's current selection.
type SubscriptionBundle struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_subscription_bundle,priority:1"`
	WorkspaceID    string       `gorm:"type:text;not null;index"`
	BundleCode     string       `gorm:"type:text;not null;uniqueIndex:ux_subscription_bundle,priority:2"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionBundle) TableName() string { return "subscription_bundles" }
