package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/bundleworks/internal/cycle"
	"github.com/smallbiznis/bundleworks/internal/money"
	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangeBundles swaps the workspace's bundle selection mid-cycle and settles
// the prorated difference: upgrades charge the remaining-days share of the
// delta immediately, downgrades accrue the share as credit on the row.
func (s *Service) ChangeBundles(ctx context.Context, req subscriptiondomain.ChangeBundlesRequest) (subscriptiondomain.ProrationResult, error) {
	workspaceID := strings.TrimSpace(req.WorkspaceID)
	if workspaceID == "" {
		return subscriptiondomain.ProrationResult{}, subscriptiondomain.ErrInvalidWorkspace
	}

	bundles, err := s.catalog.Resolve(req.BundleCodes)
	if err != nil {
		return subscriptiondomain.ProrationResult{}, err
	}

	var result subscriptiondomain.ProrationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByWorkspaceForUpdate(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if !subscription.Status.Entitled() {
			return subscriptiondomain.ErrBundleChangeForbidden
		}

		current, err := s.repo.ListBundles(ctx, tx, int64(subscription.ID))
		if err != nil {
			return err
		}
		oldCodes := make([]string, 0, len(current))
		for _, b := range current {
			oldCodes = append(oldCodes, b.BundleCode)
		}

		oldPrice, err := s.pricing.ComputePrice(oldCodes, subscription.Interval)
		if err != nil {
			return err
		}
		newCodes := make([]string, 0, len(bundles))
		for _, b := range bundles {
			newCodes = append(newCodes, b.Code)
		}
		newPrice, err := s.pricing.ComputePrice(newCodes, subscription.Interval)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		window, err := cycle.At(subscription.AnchorAt, subscription.Interval, now)
		if err != nil {
			return err
		}

		delta := newPrice.Total - oldPrice.Total
		daysRemaining := window.DaysRemaining(now)
		daysInCycle := window.Days()
		prorated := money.MulRatioHalfUp(delta, daysRemaining, daysInCycle)

		result = subscriptiondomain.ProrationResult{
			OldTotal:       oldPrice.Total,
			NewTotal:       newPrice.Total,
			Delta:          delta,
			DaysRemaining:  daysRemaining,
			DaysInCycle:    daysInCycle,
			ProratedAmount: prorated,
		}

		version := subscription.Version
		switch {
		case prorated > 0:
			// Key derives from the row version so a retried transaction
			// reuses it while a later distinct change gets a fresh one.
			key := fmt.Sprintf("proration:%s:%s:%d", workspaceID, window.ID(subscription.Interval), version)
			charge, err := s.gateway.Charge(ctx, workspaceID, prorated, key)
			if err != nil {
				return err
			}
			if charge.Status != paymentdomain.ChargeSucceeded {
				return paymentdomain.ErrPaymentFailed
			}
			result.Charged = true
			result.TransactionRef = charge.TransactionRef
		case prorated < 0:
			subscription.CreditMinor += -prorated
			result.CreditApplied = -prorated
		}

		rows := make([]subscriptiondomain.SubscriptionBundle, 0, len(bundles))
		for _, b := range bundles {
			rows = append(rows, subscriptiondomain.SubscriptionBundle{
				ID:             s.genID.Generate(),
				SubscriptionID: subscription.ID,
				WorkspaceID:    workspaceID,
				BundleCode:     b.Code,
				CreatedAt:      now,
			})
		}
		if err := s.repo.ReplaceBundles(ctx, tx, subscription, rows); err != nil {
			return err
		}

		subscription.UpdatedAt = now
		return s.repo.UpdateGuarded(ctx, tx, subscription, version)
	})
	if err != nil {
		return subscriptiondomain.ProrationResult{}, err
	}

	s.log.Info("bundles changed",
		zap.String("workspace_id", workspaceID),
		zap.Int64("prorated_amount", result.ProratedAmount),
		zap.Bool("charged", result.Charged),
	)
	return result, nil
}
