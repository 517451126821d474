package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/config"
	obsmetrics "github.com/smallbiznis/bundleworks/internal/observability/metrics"
	revenuedomain "github.com/smallbiznis/bundleworks/internal/revenue/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   revenuedomain.Repository
	Policy *config.BillingPolicyHolder
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID  *snowflake.Node
	clock  clock.Clock
	repo   revenuedomain.Repository
	policy *config.BillingPolicyHolder
}

func NewService(p ServiceParam) revenuedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("revenue.service"),

		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		policy: p.Policy,
	}
}

func (s *Service) Record(ctx context.Context, req revenuedomain.RecordRequest) (revenuedomain.RecordResult, error) {
	if err := validateRecord(&req); err != nil {
		return revenuedomain.RecordResult{}, err
	}

	now := s.clock.Now()
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	event := revenuedomain.RevenueEvent{
		ID:             s.genID.Generate(),
		WorkspaceID:    req.WorkspaceID,
		Source:         req.Source,
		AmountMinor:    req.AmountMinor,
		IdempotencyKey: req.IdempotencyKey,
		OccurredAt:     occurredAt,
		EffectiveAt:    s.effectiveAt(occurredAt, now),
		CreatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return revenuedomain.RecordResult{}, err
	}

	// The insert is a no-op on a replayed key; re-read to tell the caller
	// which event actually holds the key.
	stored, err := s.repo.FindByIdempotencyKey(ctx, s.db, req.WorkspaceID, req.IdempotencyKey)
	if err != nil {
		return revenuedomain.RecordResult{}, err
	}
	if stored == nil {
		return revenuedomain.RecordResult{Event: event}, nil
	}
	duplicate := stored.ID != event.ID
	switch {
	case duplicate:
		obsmetrics.Revenue().IncEvent(event.Source, obsmetrics.RevenueOutcomeDuplicate)
	case !event.EffectiveAt.Equal(event.OccurredAt):
		obsmetrics.Revenue().IncEvent(event.Source, obsmetrics.RevenueOutcomeDeferred)
		s.log.Info("late revenue event rolled forward",
			zap.String("workspace_id", event.WorkspaceID),
			zap.Time("occurred_at", event.OccurredAt),
			zap.Time("effective_at", event.EffectiveAt),
		)
	default:
		obsmetrics.Revenue().IncEvent(event.Source, obsmetrics.RevenueOutcomeRecorded)
	}
	return revenuedomain.RecordResult{Event: *stored, Duplicate: duplicate}, nil
}

func (s *Service) SumForPeriod(ctx context.Context, workspaceID string, start, end time.Time) (int64, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return 0, subscriptiondomain.ErrInvalidWorkspace
	}
	return s.repo.SumForPeriod(ctx, s.db, workspaceID, start, end)
}

func (s *Service) ListForPeriod(ctx context.Context, workspaceID string, start, end time.Time) ([]revenuedomain.RevenueEvent, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, subscriptiondomain.ErrInvalidWorkspace
	}
	return s.repo.ListForPeriod(ctx, s.db, workspaceID, start, end)
}

// effectiveAt rolls events reported after the grace window into the current
// open period instead of a period that already billed.
func (s *Service) effectiveAt(occurredAt, now time.Time) time.Time {
	grace := time.Duration(s.policy.Get().LateEventGraceHours) * time.Hour
	if now.Sub(occurredAt) > grace {
		return now
	}
	return occurredAt
}

func validateRecord(req *revenuedomain.RecordRequest) error {
	req.WorkspaceID = strings.TrimSpace(req.WorkspaceID)
	req.Source = strings.TrimSpace(req.Source)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.WorkspaceID == "" {
		return subscriptiondomain.ErrInvalidWorkspace
	}
	if req.Source == "" {
		return revenuedomain.ErrInvalidSource
	}
	if req.IdempotencyKey == "" {
		return revenuedomain.ErrInvalidKey
	}
	if req.AmountMinor <= 0 {
		return revenuedomain.ErrInvalidAmount
	}
	return nil
}
