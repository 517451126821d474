package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	billingdomain "github.com/smallbiznis/bundleworks/internal/billing/domain"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/money"
	obsmetrics "github.com/smallbiznis/bundleworks/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
	revenuedomain "github.com/smallbiznis/bundleworks/internal/revenue/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// chargeTimeout bounds each outbound charge so one slow provider call
// cannot stall a whole billing sweep.
const chargeTimeout = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Repo          billingdomain.Repository
	Subscriptions subscriptiondomain.Service
	SubRepo       subscriptiondomain.Repository
	Revenue       revenuedomain.Service
	Policy        *config.BillingPolicyHolder
	Gateway       paymentdomain.Gateway
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock         clock.Clock
	repo          billingdomain.Repository
	subscriptions subscriptiondomain.Service
	subRepo       subscriptiondomain.Repository
	revenue       revenuedomain.Service
	policy        *config.BillingPolicyHolder
	gateway       paymentdomain.Gateway
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("billing.service"),

		clock:         p.Clock,
		repo:          p.Repo,
		subscriptions: p.Subscriptions,
		subRepo:       p.SubRepo,
		revenue:       p.Revenue,
		policy:        p.Policy,
		gateway:       p.Gateway,
	}
}

func (s *Service) Calculate(ctx context.Context, workspaceID string, periodStart, periodEnd time.Time) (billingdomain.Statement, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return billingdomain.Statement{}, subscriptiondomain.ErrInvalidWorkspace
	}
	if !periodEnd.After(periodStart) {
		return billingdomain.Statement{}, billingdomain.ErrInvalidPeriod
	}

	revenue, err := s.revenue.SumForPeriod(ctx, workspaceID, periodStart, periodEnd)
	if err != nil {
		return billingdomain.Statement{}, err
	}

	policy := s.policy.Get()
	share := money.BasisPointsHalfUp(revenue, policy.RevenueShareBps)
	amount := share
	minimumApplied := false
	if amount < policy.MinimumBillMinor {
		amount = policy.MinimumBillMinor
		minimumApplied = true
	}

	return billingdomain.Statement{
		WorkspaceID:    workspaceID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		RevenueMinor:   revenue,
		ShareMinor:     share,
		AmountMinor:    amount,
		MinimumApplied: minimumApplied,
	}, nil
}

func (s *Service) RunForPeriod(ctx context.Context, periodStart, periodEnd time.Time) (billingdomain.RunSummary, error) {
	if !periodEnd.After(periodStart) {
		return billingdomain.RunSummary{}, billingdomain.ErrInvalidPeriod
	}

	summary := billingdomain.RunSummary{PeriodStart: periodStart, PeriodEnd: periodEnd}

	subscriptions, err := s.subRepo.ListByTier(ctx, s.db, subscriptiondomain.TierEnterprise, []subscriptiondomain.Status{
		subscriptiondomain.StatusActive,
		subscriptiondomain.StatusPastDue,
	})
	if err != nil {
		return summary, err
	}
	summary.Workspaces = len(subscriptions)

	for _, sub := range subscriptions {
		// One workspace failing must not abort the rest of the sweep.
		if err := s.billWorkspace(ctx, sub.WorkspaceID, periodStart, periodEnd, &summary); err != nil {
			summary.Failed++
			s.log.Error("enterprise billing failed for workspace",
				zap.String("workspace_id", sub.WorkspaceID),
				zap.Error(err),
			)
		}
	}

	s.log.Info("enterprise billing sweep finished",
		zap.Time("period_start", periodStart),
		zap.Int("workspaces", summary.Workspaces),
		zap.Int("created", summary.Created),
		zap.Int("skipped", summary.Skipped),
		zap.Int("charged", summary.Charged),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Service) billWorkspace(ctx context.Context, workspaceID string, periodStart, periodEnd time.Time, summary *billingdomain.RunSummary) error {
	statement, err := s.Calculate(ctx, workspaceID, periodStart, periodEnd)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	record := billingdomain.BillingRecord{
		ID:             billingdomain.RecordID(workspaceID, periodStart, periodEnd),
		WorkspaceID:    workspaceID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		RevenueMinor:   statement.RevenueMinor,
		ShareMinor:     statement.ShareMinor,
		AmountMinor:    statement.AmountMinor,
		MinimumApplied: statement.MinimumApplied,
		Status:         billingdomain.RecordPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.Insert(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !created {
		summary.Skipped++
		obsmetrics.Billing().IncRecord("skipped")
		return nil
	}
	summary.Created++
	obsmetrics.Billing().IncRecord("created")

	if err := s.collect(ctx, &record); err != nil {
		return err
	}
	if record.Status == billingdomain.RecordCharged {
		summary.Charged++
	} else {
		summary.Failed++
	}
	return nil
}

// collect attempts the charge and records the outcome on both the billing
// record and the subscription's dunning state.
func (s *Service) collect(ctx context.Context, record *billingdomain.BillingRecord) error {
	chargeCtx, cancel := context.WithTimeout(ctx, chargeTimeout)
	defer cancel()

	key := fmt.Sprintf("billing:%s", record.ID)
	result, err := s.gateway.Charge(chargeCtx, record.WorkspaceID, record.AmountMinor, key)

	record.Attempts++
	record.UpdatedAt = s.clock.Now()
	succeeded := err == nil && result.Status == paymentdomain.ChargeSucceeded
	if succeeded {
		record.Status = billingdomain.RecordCharged
		record.TransactionRef = result.TransactionRef
		obsmetrics.Billing().IncCharge("succeeded")
	} else {
		record.Status = billingdomain.RecordFailed
		obsmetrics.Billing().IncCharge("failed")
	}

	if updateErr := s.repo.Update(ctx, s.db, record); updateErr != nil {
		return updateErr
	}
	if outcomeErr := s.subscriptions.RecordChargeOutcome(ctx, record.WorkspaceID, succeeded); outcomeErr != nil {
		s.log.Warn("charge outcome not applied to subscription",
			zap.String("workspace_id", record.WorkspaceID),
			zap.Error(outcomeErr),
		)
	}
	return err
}

func (s *Service) RetryFailed(ctx context.Context, periodStart time.Time) (billingdomain.RunSummary, error) {
	summary := billingdomain.RunSummary{PeriodStart: periodStart}

	// PENDING records are stranded attempts: a crash between insert and
	// charge outcome leaves them behind, so the sweep collects them too.
	records, err := s.repo.ListByStatus(ctx, s.db, []billingdomain.RecordStatus{
		billingdomain.RecordPending,
		billingdomain.RecordFailed,
	}, periodStart)
	if err != nil {
		return summary, err
	}
	summary.Workspaces = len(records)

	for i := range records {
		record := records[i]
		if err := s.collect(ctx, &record); err != nil {
			s.log.Warn("billing retry failed",
				zap.String("workspace_id", record.WorkspaceID),
				zap.Error(err),
			)
		}
		if record.Status == billingdomain.RecordCharged {
			summary.Charged++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Service) ListRecords(ctx context.Context, workspaceID string) ([]billingdomain.BillingRecord, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, subscriptiondomain.ErrInvalidWorkspace
	}
	return s.repo.ListByWorkspace(ctx, s.db, workspaceID)
}
