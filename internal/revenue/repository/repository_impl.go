package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/bundleworks/internal/revenue/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, event *domain.RevenueEvent) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(event).Error
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, workspaceID, key string) (*domain.RevenueEvent, error) {
	var event domain.RevenueEvent
	err := tx.WithContext(ctx).Where("workspace_id = ? AND idempotency_key = ?", workspaceID, key).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) SumForPeriod(ctx context.Context, tx *gorm.DB, workspaceID string, start, end time.Time) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).
		Model(&domain.RevenueEvent{}).
		Where("workspace_id = ? AND effective_at >= ? AND effective_at < ?", workspaceID, start, end).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) ListForPeriod(ctx context.Context, tx *gorm.DB, workspaceID string, start, end time.Time) ([]domain.RevenueEvent, error) {
	var events []domain.RevenueEvent
	err := tx.WithContext(ctx).
		Where("workspace_id = ? AND effective_at >= ? AND effective_at < ?", workspaceID, start, end).
		Order("effective_at ASC").
		Find(&events).Error
	return events, err
}
