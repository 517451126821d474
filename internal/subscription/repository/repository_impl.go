package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription, bundles []domain.SubscriptionBundle) error {
	if err := tx.WithContext(ctx).Create(subscription).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	if len(bundles) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&bundles).Error
}

func (r *repository) FindByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := tx.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByWorkspaceForUpdate(ctx context.Context, tx *gorm.DB, workspaceID string) (*domain.Subscription, error) {
	stmt := tx.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if supportsRowLocks(tx) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var subscription domain.Subscription
	if err := stmt.First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) UpdateGuarded(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription, expectedVersion int64) error {
	subscription.Version = expectedVersion + 1
	result := tx.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND version = ?", subscription.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(subscription)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (r *repository) ListBundles(ctx context.Context, tx *gorm.DB, subscriptionID int64) ([]domain.SubscriptionBundle, error) {
	var bundles []domain.SubscriptionBundle
	err := tx.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("bundle_code").
		Find(&bundles).Error
	return bundles, err
}

func (r *repository) ReplaceBundles(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription, bundles []domain.SubscriptionBundle) error {
	if err := tx.WithContext(ctx).
		Where("subscription_id = ?", subscription.ID).
		Delete(&domain.SubscriptionBundle{}).Error; err != nil {
		return err
	}
	if len(bundles) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&bundles).Error
}

func (r *repository) ListByTier(ctx context.Context, tx *gorm.DB, tier domain.PlanTier, statuses []domain.Status) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := tx.WithContext(ctx).
		Where("plan_tier = ? AND status IN ?", tier, statuses).
		Order("workspace_id").
		Find(&subscriptions).Error
	return subscriptions, err
}

func (r *repository) ListByStatus(ctx context.Context, tx *gorm.DB, statuses []domain.Status) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := tx.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("workspace_id").
		Find(&subscriptions).Error
	return subscriptions, err
}

func supportsRowLocks(tx *gorm.DB) bool {
	name := strings.ToLower(tx.Dialector.Name())
	return name == "postgres" || name == "mysql"
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
