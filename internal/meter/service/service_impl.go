package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	"github.com/smallbiznis/bundleworks/internal/events"
	meterdomain "github.com/smallbiznis/bundleworks/internal/meter/domain"
	"github.com/smallbiznis/bundleworks/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const warnPct = 80

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Counters meterdomain.CounterStore
	Repo     meterdomain.Repository
	Hub      *events.Hub
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	counters meterdomain.CounterStore
	repo     meterdomain.Repository
	hub      *events.Hub
}

func NewService(p ServiceParam) meterdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("meter.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		counters: p.Counters,
		repo:     p.Repo,
		hub:      p.Hub,
	}
}

func (s *Service) Consume(ctx context.Context, req meterdomain.ConsumeRequest) (meterdomain.ConsumeResult, error) {
	if err := validateConsume(&req); err != nil {
		return meterdomain.ConsumeResult{}, err
	}

	key := cycle.Key(req.WorkspaceID, req.FeatureID, req.CycleID)
	warnAt := meterdomain.Unlimited
	if req.Limit >= 0 {
		warnAt = money.PercentHalfUp(req.Limit, warnPct)
	}

	applied, err := s.counters.Apply(ctx, key, req.IdempotencyKey, req.Amount, req.Limit, warnAt)
	if err != nil {
		return meterdomain.ConsumeResult{}, err
	}

	result := meterdomain.ConsumeResult{
		Allowed:      applied.Allowed,
		Deduplicated: applied.Duplicate,
		NewTotal:     applied.NewTotal,
		Limit:        req.Limit,
		Remaining:    remaining(req.Limit, applied.NewTotal),
	}

	if !applied.Allowed || applied.Duplicate {
		return result, nil
	}

	event := meterdomain.UsageEvent{
		ID:             s.genID.Generate(),
		WorkspaceID:    req.WorkspaceID,
		FeatureID:      req.FeatureID,
		CycleID:        req.CycleID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         req.Amount,
		RecordedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, s.db, &event); err != nil {
		// The counter already accepted the increment; losing the journal
		// row is recoverable via SumForCycle, the decision is not rolled
		// back.
		s.log.Error("usage journal insert failed",
			zap.String("workspace_id", req.WorkspaceID),
			zap.String("feature_id", req.FeatureID),
			zap.Error(err),
		)
	}

	s.publishThresholds(req, applied)
	return result, nil
}

func (s *Service) TotalForCycle(ctx context.Context, workspaceID, featureID, cycleID string) (int64, error) {
	key := cycle.Key(workspaceID, featureID, cycleID)
	total, err := s.counters.Total(ctx, key)
	if err == nil && total > 0 {
		return total, nil
	}
	if err != nil {
		s.log.Warn("counter read failed, falling back to journal", zap.Error(err))
	}
	return s.repo.SumForCycle(ctx, s.db, workspaceID, featureID, cycleID)
}

func (s *Service) CloseCycle(ctx context.Context, ref meterdomain.CycleRef) error {
	key := cycle.Key(ref.WorkspaceID, ref.FeatureID, ref.CycleID)
	if err := s.counters.Reset(ctx, key); err != nil {
		return err
	}
	s.log.Info("usage cycle closed",
		zap.String("workspace_id", ref.WorkspaceID),
		zap.String("feature_id", ref.FeatureID),
		zap.String("cycle_id", ref.CycleID),
	)
	return nil
}

func (s *Service) ClosableCycles(ctx context.Context, before time.Time) ([]meterdomain.CycleRef, error) {
	return s.repo.DistinctCycles(ctx, s.db, before)
}

func (s *Service) publishThresholds(req meterdomain.ConsumeRequest, applied meterdomain.ApplyResult) {
	if s.hub == nil {
		return
	}
	now := s.clock.Now()
	if applied.CrossedWarn {
		s.hub.Publish(events.ThresholdEvent{
			Type:        events.TypeWarning,
			WorkspaceID: req.WorkspaceID,
			FeatureID:   req.FeatureID,
			CycleID:     req.CycleID,
			Total:       applied.NewTotal,
			Limit:       req.Limit,
			OccurredAt:  now,
		})
	}
	if applied.CrossedBlock {
		s.hub.Publish(events.ThresholdEvent{
			Type:        events.TypeBlock,
			WorkspaceID: req.WorkspaceID,
			FeatureID:   req.FeatureID,
			CycleID:     req.CycleID,
			Total:       applied.NewTotal,
			Limit:       req.Limit,
			OccurredAt:  now,
		})
	}
}

func validateConsume(req *meterdomain.ConsumeRequest) error {
	req.WorkspaceID = strings.TrimSpace(req.WorkspaceID)
	req.FeatureID = strings.TrimSpace(req.FeatureID)
	req.CycleID = strings.TrimSpace(req.CycleID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.WorkspaceID == "" || req.CycleID == "" {
		return meterdomain.ErrInvalidFeature
	}
	if req.FeatureID == "" {
		return meterdomain.ErrInvalidFeature
	}
	if req.IdempotencyKey == "" {
		return meterdomain.ErrInvalidKey
	}
	if req.Amount <= 0 {
		return meterdomain.ErrInvalidAmount
	}
	return nil
}

func remaining(limit, total int64) int64 {
	if limit < 0 {
		return meterdomain.Unlimited
	}
	if total >= limit {
		return 0
	}
	return limit - total
}
