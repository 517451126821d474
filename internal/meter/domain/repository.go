package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent journals an accepted consumption; a duplicate idempotency
	// key is a silent no-op.
	InsertEvent(ctx context.Context, tx *gorm.DB, event *UsageEvent) error
	// SumForCycle totals journaled usage, used to rebuild a lost counter.
	SumForCycle(ctx context.Context, tx *gorm.DB, workspaceID, featureID, cycleID string) (int64, error)
	ListEvents(ctx context.Context, tx *gorm.DB, workspaceID, featureID, cycleID string) ([]UsageEvent, error)
	// DistinctCycles lists (workspace, feature, cycle) tuples with events
	// recorded before the cutoff, for cycle close sweeps.
	DistinctCycles(ctx context.Context, tx *gorm.DB, before time.Time) ([]CycleRef, error)
}

// CycleRef identifies one workspace feature counter scope.
type CycleRef struct {
	WorkspaceID string
	FeatureID   string
	CycleID     string
}
