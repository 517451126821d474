// Package domain holds the revenue journal models. Events are insert-only;
// enterprise billing reads period sums over their effective timestamps.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidKey    = errors.New("invalid_idempotency_key")
	ErrInvalidSource = errors.New("invalid_source")
)

// RevenueEvent records one unit of processed revenue, in minor units.
// EffectiveAt places the event in a billing period: it equals OccurredAt for
// timely events and rolls forward to ingestion time for events reported
// after their period closed.
type RevenueEvent struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	WorkspaceID    string       `gorm:"type:text;not null;index:ix_revenue_period,priority:1;uniqueIndex:ux_revenue_event_key,priority:1"`
	Source         string       `gorm:"type:text;not null"`
	AmountMinor    int64        `gorm:"not null"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex:ux_revenue_event_key,priority:2"`
	OccurredAt     time.Time    `gorm:"not null"`
	EffectiveAt    time.Time    `gorm:"not null;index:ix_revenue_period,priority:2"`
	CreatedAt      time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (RevenueEvent) TableName() string { return "revenue_events" }

// RecordRequest reports revenue processed on behalf of a workspace.
type RecordRequest struct {
	WorkspaceID    string    `json:"workspace_id"`
	Source         string    `json:"source"`
	AmountMinor    int64     `json:"amount_minor"`
	IdempotencyKey string    `json:"idempotency_key"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RecordResult reports the stored event; Duplicate marks an idempotent
// replay that changed nothing.
type RecordResult struct {
	Event     RevenueEvent `json:"event"`
	Duplicate bool         `json:"duplicate"`
}

type Service interface {
	// Record journals a revenue event exactly once per idempotency key.
	Record(ctx context.Context, req RecordRequest) (RecordResult, error)
	// SumForPeriod totals effective revenue in [start, end).
	SumForPeriod(ctx context.Context, workspaceID string, start, end time.Time) (int64, error)
	ListForPeriod(ctx context.Context, workspaceID string, start, end time.Time) ([]RevenueEvent, error)
}

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, event *RevenueEvent) error
	FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, workspaceID, key string) (*RevenueEvent, error)
	SumForPeriod(ctx context.Context, tx *gorm.DB, workspaceID string, start, end time.Time) (int64, error)
	ListForPeriod(ctx context.Context, tx *gorm.DB, workspaceID string, start, end time.Time) ([]RevenueEvent, error)
}
