package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/bundleworks/internal/meter/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) InsertEvent(ctx context.Context, tx *gorm.DB, event *domain.UsageEvent) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(event).Error
}

func (r *repository) SumForCycle(ctx context.Context, tx *gorm.DB, workspaceID, featureID, cycleID string) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).
		Model(&domain.UsageEvent{}).
		Where("workspace_id = ? AND feature_id = ? AND cycle_id = ?", workspaceID, featureID, cycleID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) ListEvents(ctx context.Context, tx *gorm.DB, workspaceID, featureID, cycleID string) ([]domain.UsageEvent, error) {
	var events []domain.UsageEvent
	err := tx.WithContext(ctx).
		Where("workspace_id = ? AND feature_id = ? AND cycle_id = ?", workspaceID, featureID, cycleID).
		Order("recorded_at ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) DistinctCycles(ctx context.Context, tx *gorm.DB, before time.Time) ([]domain.CycleRef, error) {
	var refs []domain.CycleRef
	err := tx.WithContext(ctx).
		Model(&domain.UsageEvent{}).
		Distinct("workspace_id", "feature_id", "cycle_id").
		Where("recorded_at < ?", before).
		Find(&refs).Error
	return refs, err
}
