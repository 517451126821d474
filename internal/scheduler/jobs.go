package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smallbiznis/bundleworks/internal/cycle"
	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
)

// EnterpriseBillingJob sweeps the most recently closed calendar month into
// billing records and collects them. The sweep lock keeps a second replica
// from racing the same period; record-level idempotency would stop a double
// charge anyway, so losing the lock is not an error.
func (s *Scheduler) EnterpriseBillingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "enterprise_billing", s.cfg.CloseBatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	token, ok, err := s.limiter.TryLockSweep(ctx, "enterprise_billing")
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("billing sweep lock held elsewhere, skipping")
		return nil
	}
	defer func() { _ = s.limiter.ReleaseSweep(ctx, "enterprise_billing", token) }()

	start, end := previousMonth(s.clock.Now())
	summary, err := s.billing.RunForPeriod(ctx, start, end)
	run.AddProcessed(summary.Workspaces)
	if summary.Failed > 0 {
		s.log.Warn("billing sweep left failed records",
			zap.Time("period_start", start),
			zap.Int("failed", summary.Failed),
		)
	}
	return err
}

// RetryChargesJob re-collects billing records whose charge failed on an
// earlier sweep.
func (s *Scheduler) RetryChargesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "retry_charges", s.cfg.CloseBatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	start, _ := previousMonth(s.clock.Now())
	summary, err := s.billing.RetryFailed(ctx, start)
	run.AddProcessed(summary.Charged)
	if summary.Failed > 0 {
		run.IncError()
	}
	return err
}

// ExpireTrialsJob attempts the first recurring charge for trials that have
// run out. A successful charge promotes the subscription to active; a failed
// or impossible one starts dunning.
func (s *Scheduler) ExpireTrialsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expire_trials", s.cfg.TrialBatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	now := s.clock.Now()
	subs, err := s.subRepo.ListByStatus(ctx, s.db, []subscriptiondomain.Status{subscriptiondomain.StatusTrialing})
	if err != nil {
		return err
	}

	var jobErr error
	processed := 0
	for _, sub := range subs {
		if processed >= s.cfg.TrialBatchSize {
			break
		}
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if sub.TrialEndsAt == nil || sub.TrialEndsAt.After(now) {
			continue
		}

		succeeded, err := s.collectRenewal(ctx, sub)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(run, "scheduler.trial.expire.failed", "expire_trials", sub.WorkspaceID, err)
			continue
		}
		if err := s.subSvc.RecordChargeOutcome(ctx, sub.WorkspaceID, succeeded); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(run, "scheduler.trial.expire.failed", "expire_trials", sub.WorkspaceID, err)
			continue
		}
		run.AddProcessed(1)
		processed++
	}
	return jobErr
}

// collectRenewal charges one full cycle for the subscription's current
// selection. Returns whether the money landed; gateway declines count as an
// unsuccessful charge, not a job error.
func (s *Scheduler) collectRenewal(ctx context.Context, sub subscriptiondomain.Subscription) (bool, error) {
	if !sub.PaymentMethodOnFile {
		return false, nil
	}

	rows, err := s.subRepo.ListBundles(ctx, s.db, int64(sub.ID))
	if err != nil {
		return false, err
	}
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.BundleCode)
	}

	breakdown, err := s.pricing.ComputePrice(codes, sub.Interval)
	if err != nil {
		return false, err
	}
	if breakdown.Total == 0 {
		return true, nil
	}

	cycleID, err := cycle.IDAt(sub.AnchorAt, sub.Interval, s.clock.Now())
	if err != nil {
		return false, err
	}
	key := fmt.Sprintf("renewal:%s:%s", sub.WorkspaceID, cycleID)
	res, err := s.gateway.Charge(ctx, sub.WorkspaceID, breakdown.Total, key)
	if err != nil {
		s.log.Warn("renewal charge declined",
			zap.String("workspace_id", sub.WorkspaceID),
			zap.Error(err),
		)
		return false, nil
	}
	return res.Status == paymentdomain.ChargeSucceeded, nil
}

// CloseUsageCyclesJob reclaims live counters for usage scopes whose events
// are all older than the close age. Closing is idempotent; the journal keeps
// the totals.
func (s *Scheduler) CloseUsageCyclesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "close_usage_cycles", s.cfg.CloseBatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	cutoff := s.clock.Now().Add(-s.cfg.CloseCycleAge)
	refs, err := s.meter.ClosableCycles(ctx, cutoff)
	if err != nil {
		return err
	}

	var jobErr error
	for i, ref := range refs {
		if i >= s.cfg.CloseBatchSize {
			break
		}
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.meter.CloseCycle(ctx, ref); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(run, "scheduler.cycle.close.failed", "close_usage_cycles", ref.WorkspaceID, err,
				zap.String("feature_id", ref.FeatureID),
				zap.String("cycle_id", ref.CycleID),
			)
			continue
		}
		run.AddProcessed(1)
	}
	return jobErr
}
