package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
	"github.com/smallbiznis/bundleworks/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Catalog *catalog.Catalog
	Pricing *pricing.Engine
	Policy  *config.BillingPolicyHolder
	Gateway paymentdomain.Gateway
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	catalog *catalog.Catalog
	pricing *pricing.Engine
	policy  *config.BillingPolicyHolder
	gateway paymentdomain.Gateway
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		pricing: p.Pricing,
		policy:  p.Policy,
		gateway: p.Gateway,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (subscriptiondomain.Subscription, error) {
	workspaceID := strings.TrimSpace(req.WorkspaceID)
	if workspaceID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidWorkspace
	}

	interval, err := cycle.ParseInterval(string(req.Interval))
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	tier, err := parseTier(req.PlanTier)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	bundles, err := s.catalog.Resolve(req.BundleCodes)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	now := s.clock.Now()
	trialEnds := now.AddDate(0, 0, s.policy.Get().TrialDays)
	subscription := subscriptiondomain.Subscription{
		ID:                  s.genID.Generate(),
		WorkspaceID:         workspaceID,
		Status:              subscriptiondomain.StatusTrialing,
		PlanTier:            tier,
		Interval:            interval,
		AnchorAt:            now,
		TrialEndsAt:         &trialEnds,
		PaymentMethodOnFile: req.PaymentMethodOnFile,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.Metadata != nil {
		subscription.Metadata = datatypes.JSONMap(req.Metadata)
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

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &subscription, rows)
	}); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("workspace_id", workspaceID),
		zap.String("plan_tier", string(tier)),
		zap.Int("bundles", len(rows)),
	)
	return subscription, nil
}

func (s *Service) GetByWorkspace(ctx context.Context, workspaceID string) (subscriptiondomain.View, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return subscriptiondomain.View{}, subscriptiondomain.ErrInvalidWorkspace
	}

	subscription, err := s.repo.FindByWorkspace(ctx, s.db, workspaceID)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	if subscription == nil {
		return subscriptiondomain.View{}, subscriptiondomain.ErrNotFound
	}

	bundles, err := s.repo.ListBundles(ctx, s.db, int64(subscription.ID))
	if err != nil {
		return subscriptiondomain.View{}, err
	}

	codes := make([]string, 0, len(bundles))
	for _, b := range bundles {
		codes = append(codes, b.BundleCode)
	}

	return subscriptiondomain.View{
		WorkspaceID: subscription.WorkspaceID,
		Status:      subscription.Status,
		PlanTier:    subscription.PlanTier,
		Interval:    subscription.Interval,
		AnchorAt:    subscription.AnchorAt,
		BundleCodes: codes,
	}, nil
}

func (s *Service) Pause(ctx context.Context, workspaceID string) error {
	return s.transition(ctx, workspaceID, subscriptiondomain.StatusPaused, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		sub.PausedAt = &now
		return nil
	})
}

func (s *Service) Resume(ctx context.Context, workspaceID string) error {
	return s.transition(ctx, workspaceID, subscriptiondomain.StatusActive, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		if !sub.PaymentMethodOnFile {
			return subscriptiondomain.ErrPaymentMethodRequired
		}
		sub.ResumedAt = &now
		sub.ChargeAttempts = 0
		sub.FirstFailedAt = nil
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, workspaceID string) error {
	return s.transition(ctx, workspaceID, subscriptiondomain.StatusCanceled, func(sub *subscriptiondomain.Subscription, now time.Time) error {
		sub.CanceledAt = &now
		return nil
	})
}

func (s *Service) RecordChargeOutcome(ctx context.Context, workspaceID string, succeeded bool) error {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return subscriptiondomain.ErrInvalidWorkspace
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByWorkspaceForUpdate(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status.Terminal() {
			return nil
		}

		now := s.clock.Now()
		version := subscription.Version

		if succeeded {
			subscription.Status = subscriptiondomain.StatusActive
			subscription.ChargeAttempts = 0
			subscription.FirstFailedAt = nil
		} else {
			subscription.ChargeAttempts++
			if subscription.FirstFailedAt == nil {
				subscription.FirstFailedAt = &now
			}
			policy := s.policy.Get()
			exhausted := subscription.ChargeAttempts >= policy.ChargeMaxAttempts ||
				now.After(subscription.FirstFailedAt.AddDate(0, 0, policy.ChargeRetryDays))
			if exhausted {
				subscription.Status = subscriptiondomain.StatusPaused
				subscription.PausedAt = &now
				s.log.Warn("charge retries exhausted, subscription paused",
					zap.String("workspace_id", workspaceID),
					zap.Int("attempts", subscription.ChargeAttempts),
				)
			} else {
				subscription.Status = subscriptiondomain.StatusPastDue
			}
		}

		subscription.UpdatedAt = now
		return s.repo.UpdateGuarded(ctx, tx, subscription, version)
	})
}

func (s *Service) CurrentCycle(ctx context.Context, workspaceID string) (cycle.Window, string, error) {
	view, err := s.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return cycle.Window{}, "", err
	}
	window, err := cycle.At(view.AnchorAt, view.Interval, s.clock.Now())
	if err != nil {
		return cycle.Window{}, "", err
	}
	return window, window.ID(view.Interval), nil
}

// transition serializes on the workspace row, validates the move against the
// lifecycle table, applies mutate, and commits under the version guard so a
// racing writer surfaces as ErrStateConflict instead of a lost update.
func (s *Service) transition(
	ctx context.Context,
	workspaceID string,
	target subscriptiondomain.Status,
	mutate func(sub *subscriptiondomain.Subscription, now time.Time) error,
) error {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return subscriptiondomain.ErrInvalidWorkspace
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByWorkspaceForUpdate(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status == target {
			return nil
		}
		if !isTransitionAllowed(subscription.Status, target) {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		version := subscription.Version
		if err := mutate(subscription, now); err != nil {
			return err
		}
		subscription.Status = target
		subscription.UpdatedAt = now

		return s.repo.UpdateGuarded(ctx, tx, subscription, version)
	})
}

func isTransitionAllowed(current, target subscriptiondomain.Status) bool {
	if target == subscriptiondomain.StatusCanceled {
		return !current.Terminal()
	}
	switch current {
	case subscriptiondomain.StatusTrialing:
		return target == subscriptiondomain.StatusActive || target == subscriptiondomain.StatusPastDue
	case subscriptiondomain.StatusActive:
		return target == subscriptiondomain.StatusPaused || target == subscriptiondomain.StatusPastDue
	case subscriptiondomain.StatusPastDue:
		return target == subscriptiondomain.StatusActive || target == subscriptiondomain.StatusPaused
	case subscriptiondomain.StatusPaused:
		return target == subscriptiondomain.StatusActive
	default:
		return false
	}
}

func parseTier(value subscriptiondomain.PlanTier) (subscriptiondomain.PlanTier, error) {
	tier := subscriptiondomain.PlanTier(strings.ToLower(strings.TrimSpace(string(value))))
	if tier == "" {
		return subscriptiondomain.TierStandard, nil
	}
	switch tier {
	case subscriptiondomain.TierStandard, subscriptiondomain.TierEnterprise:
		return tier, nil
	default:
		return "", subscriptiondomain.ErrInvalidTier
	}
}
