package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, subscription *Subscription, bundles []SubscriptionBundle) error
	FindByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) (*Subscription, error)
	// FindByWorkspaceForUpdate takes a row lock where the dialect supports
	// it, serializing writers on one workspace.
	FindByWorkspaceForUpdate(ctx context.Context, tx *gorm.DB, workspaceID string) (*Subscription, error)
	// UpdateGuarded persists the subscription only if the stored version
	// still matches expectedVersion; returns ErrStateConflict otherwise.
	UpdateGuarded(ctx context.Context, tx *gorm.DB, subscription *Subscription, expectedVersion int64) error
	ListBundles(ctx context.Context, tx *gorm.DB, subscriptionID int64) ([]SubscriptionBundle, error)
	ReplaceBundles(ctx context.Context, tx *gorm.DB, subscription *Subscription, bundles []SubscriptionBundle) error
	ListByTier(ctx context.Context, tx *gorm.DB, tier PlanTier, statuses []Status) ([]Subscription, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, statuses []Status) ([]Subscription, error)
}
