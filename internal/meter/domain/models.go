// Package domain contains the usage metering models. Counters are the
// source of truth for enforcement; usage_events is the write-once journal
// behind them.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidFeature = errors.New("invalid_feature")
	ErrInvalidKey     = errors.New("invalid_idempotency_key")
)

// Unlimited marks a counter with no cap.
const Unlimited int64 = -1

// UsageEvent journals one accepted consumption. Rows are insert-only and
// deduplicated per workspace on the idempotency key, matching the counter
// store's dedupe scope.
type UsageEvent struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	WorkspaceID    string       `gorm:"type:text;not null;index:ix_usage_scope,priority:1;uniqueIndex:ux_usage_event_key,priority:1"`
	FeatureID      string       `gorm:"type:text;not null;index:ix_usage_scope,priority:2"`
	CycleID        string       `gorm:"type:text;not null;index:ix_usage_scope,priority:3"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:ux_usage_event_key,priority:2"`
	Amount         int64        `gorm:"not null"`
	RecordedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// ConsumeRequest asks to count Amount units of a feature against the
// workspace's current cycle. Limit is resolved by the caller; Unlimited
// skips the cap check.
type ConsumeRequest struct {
	WorkspaceID    string
	FeatureID      string
	CycleID        string
	Amount         int64
	IdempotencyKey string
	Limit          int64
}

// ConsumeResult reports the counter state after the request. A denied
// request leaves NewTotal untouched; a deduplicated one reports the total
// as of its first application.
type ConsumeResult struct {
	Allowed      bool  `json:"allowed"`
	Deduplicated bool  `json:"deduplicated"`
	NewTotal     int64 `json:"new_total"`
	Remaining    int64 `json:"remaining"`
	Limit        int64 `json:"limit"`
}
