package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/bundleworks/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, record *domain.BillingRecord) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, tx *gorm.DB, record *domain.BillingRecord) error {
	return tx.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("id = ?", record.ID).
		Select("*").Omit("id", "created_at").
		Updates(record).Error
}

func (r *repository) FindByID(ctx context.Context, tx *gorm.DB, id string) (*domain.BillingRecord, error) {
	var record domain.BillingRecord
	err := tx.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) ([]domain.BillingRecord, error) {
	var records []domain.BillingRecord
	err := tx.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("period_start DESC").
		Find(&records).Error
	return records, err
}

func (r *repository) ListByStatus(ctx context.Context, tx *gorm.DB, statuses []domain.RecordStatus, periodStart time.Time) ([]domain.BillingRecord, error) {
	var records []domain.BillingRecord
	err := tx.WithContext(ctx).
		Where("status IN ? AND period_start = ?", statuses, periodStart).
		Find(&records).Error
	return records, err
}
