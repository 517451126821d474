// Package quota decides whether a workspace may consume a metered feature.
// It resolves the limit from the subscription's bundle selection and
// delegates the atomic counting to the usage meter.
package quota

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/bundleworks/internal/cache"
	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	meterdomain "github.com/smallbiznis/bundleworks/internal/meter/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrQuotaExceeded  = errors.New("quota_exceeded")
	ErrUnknownFeature = errors.New("unknown_feature")
	ErrNotEntitled    = errors.New("not_entitled")
)

// ConsumeRequest identifies one consumption attempt against the caller's
// current cycle.
type ConsumeRequest struct {
	WorkspaceID    string `json:"workspace_id"`
	FeatureID      string `json:"feature_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Result mirrors the meter's view of the counter after the decision.
type Result struct {
	Allowed      bool   `json:"allowed"`
	Deduplicated bool   `json:"deduplicated"`
	CycleID      string `json:"cycle_id"`
	NewTotal     int64  `json:"new_total"`
	Remaining    int64  `json:"remaining"`
	Limit        int64  `json:"limit"`
}

type EnforcerParam struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Catalog       *catalog.Catalog
	Subscriptions subscriptiondomain.Service
	Meter         meterdomain.Service
	Cache         cache.EntitlementResolverCache
}

type Enforcer struct {
	log           *zap.Logger
	clock         clock.Clock
	catalog       *catalog.Catalog
	subscriptions subscriptiondomain.Service
	meter         meterdomain.Service
	cache         cache.EntitlementResolverCache
}

func NewEnforcer(p EnforcerParam) *Enforcer {
	return &Enforcer{
		log:           p.Log.Named("quota.enforcer"),
		clock:         p.Clock,
		catalog:       p.Catalog,
		subscriptions: p.Subscriptions,
		meter:         p.Meter,
		cache:         p.Cache,
	}
}

// Consume checks entitlement, resolves the summed limit across the
// workspace's bundles, and applies the increment. A feature no bundle
// declares fails closed with ErrUnknownFeature.
func (e *Enforcer) Consume(ctx context.Context, req ConsumeRequest) (Result, error) {
	featureID := strings.TrimSpace(req.FeatureID)
	if featureID == "" {
		return Result{}, ErrUnknownFeature
	}

	view, err := e.resolveView(ctx, req.WorkspaceID)
	if err != nil {
		return Result{}, err
	}
	if !view.Status.Entitled() {
		return Result{}, ErrNotEntitled
	}

	limit, declared, err := e.catalog.LimitFor(view.BundleCodes, featureID)
	if err != nil {
		return Result{}, err
	}
	if !declared {
		e.log.Warn("consumption of undeclared feature denied",
			zap.String("workspace_id", view.WorkspaceID),
			zap.String("feature_id", featureID),
		)
		return Result{}, ErrUnknownFeature
	}

	window, err := cycle.At(view.AnchorAt, view.Interval, e.clock.Now())
	if err != nil {
		return Result{}, err
	}
	cycleID := window.ID(view.Interval)

	consumed, err := e.meter.Consume(ctx, meterdomain.ConsumeRequest{
		WorkspaceID:    view.WorkspaceID,
		FeatureID:      featureID,
		CycleID:        cycleID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Limit:          limit,
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Allowed:      consumed.Allowed,
		Deduplicated: consumed.Deduplicated,
		CycleID:      cycleID,
		NewTotal:     consumed.NewTotal,
		Remaining:    consumed.Remaining,
		Limit:        consumed.Limit,
	}
	if !consumed.Allowed {
		return result, ErrQuotaExceeded
	}
	return result, nil
}

// Usage reports the current cycle's counter without consuming.
func (e *Enforcer) Usage(ctx context.Context, workspaceID, featureID string) (Result, error) {
	view, err := e.resolveView(ctx, workspaceID)
	if err != nil {
		return Result{}, err
	}

	limit, declared, err := e.catalog.LimitFor(view.BundleCodes, featureID)
	if err != nil {
		return Result{}, err
	}
	if !declared {
		return Result{}, ErrUnknownFeature
	}

	window, err := cycle.At(view.AnchorAt, view.Interval, e.clock.Now())
	if err != nil {
		return Result{}, err
	}
	cycleID := window.ID(view.Interval)

	total, err := e.meter.TotalForCycle(ctx, view.WorkspaceID, featureID, cycleID)
	if err != nil {
		return Result{}, err
	}

	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   total < limit,
		CycleID:   cycleID,
		NewTotal:  total,
		Remaining: remaining,
		Limit:     limit,
	}, nil
}

// resolveView serves the subscription view from the shared resolver cache
// so the hot path does not touch the database on every decision. Lifecycle
// writes invalidate the same cache; the TTL bounds any remaining staleness.
func (e *Enforcer) resolveView(ctx context.Context, workspaceID string) (subscriptiondomain.View, error) {
	if e.cache != nil {
		if view, ok := e.cache.GetView(workspaceID); ok {
			return view, nil
		}
	}
	view, err := e.subscriptions.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if e.cache != nil {
		e.cache.SetView(workspaceID, view)
	}
	return view, nil
}
