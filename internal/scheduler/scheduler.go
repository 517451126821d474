// Package scheduler drives the recurring billing work: sweeping closed
// periods into enterprise billing records, retrying failed collections,
// ending expired trials, and reclaiming finished usage counters.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/bundleworks/internal/billing/domain"
	"github.com/smallbiznis/bundleworks/internal/clock"
	meterdomain "github.com/smallbiznis/bundleworks/internal/meter/domain"
	obsmetrics "github.com/smallbiznis/bundleworks/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/bundleworks/internal/payment/domain"
	"github.com/smallbiznis/bundleworks/internal/pricing"
	"github.com/smallbiznis/bundleworks/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
)

var ErrInvalidConfig = errors.New("scheduler misconfigured")

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	BillingSvc       billingdomain.Service
	SubscriptionSvc  subscriptiondomain.Service
	SubscriptionRepo subscriptiondomain.Repository
	MeterSvc         meterdomain.Service
	Pricing          *pricing.Engine
	Gateway          paymentdomain.Gateway
	Limiter          *ratelimit.ConsumeLimiter `optional:"true"`
	Config           Config                    `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	billing billingdomain.Service
	subSvc  subscriptiondomain.Service
	subRepo subscriptiondomain.Repository
	meter   meterdomain.Service
	pricing *pricing.Engine
	gateway paymentdomain.Gateway
	limiter *ratelimit.ConsumeLimiter
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.BillingSvc == nil ||
		p.SubscriptionSvc == nil || p.SubscriptionRepo == nil || p.MeterSvc == nil ||
		p.Pricing == nil || p.Gateway == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg,
		clock:   p.Clock,
		billing: p.BillingSvc,
		subSvc:  p.SubscriptionSvc,
		subRepo: p.SubscriptionRepo,
		meter:   p.MeterSvc,
		pricing: p.Pricing,
		gateway: p.Gateway,
		limiter: p.Limiter,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(run)
	}
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft failure; the next tick picks the work back up.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"enterprise_billing", s.isJobEnabled("enterprise_billing"), func(ctx context.Context) error {
			return s.runJob(ctx, "enterprise_billing", s.cfg.CloseBatchSize, 5*time.Minute, s.EnterpriseBillingJob)
		}},
		{"retry_charges", s.isJobEnabled("retry_charges"), func(ctx context.Context) error {
			return s.runJob(ctx, "retry_charges", s.cfg.CloseBatchSize, time.Minute, s.RetryChargesJob)
		}},
		{"expire_trials", s.isJobEnabled("expire_trials"), func(ctx context.Context) error {
			return s.runJob(ctx, "expire_trials", s.cfg.TrialBatchSize, time.Minute, s.ExpireTrialsJob)
		}},
		{"close_usage_cycles", s.isJobEnabled("close_usage_cycles"), func(ctx context.Context) error {
			return s.runJob(ctx, "close_usage_cycles", s.cfg.CloseBatchSize, 30*time.Second, s.CloseUsageCyclesJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// previousMonth returns the most recently closed calendar month in UTC.
func previousMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -1, 0)
	return start, end
}
