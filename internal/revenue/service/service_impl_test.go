package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/revenue/domain"
	"github.com/smallbiznis/bundleworks/internal/revenue/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.RevenueEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Repo:   repository.Provide(),
		Policy: config.NewStaticBillingPolicyHolder(config.DefaultBillingPolicy()),
	})
	return svc, fake
}

func record(key string, amount int64, occurredAt time.Time) domain.RecordRequest {
	return domain.RecordRequest{
		WorkspaceID:    "ws_1",
		Source:         "store.orders",
		AmountMinor:    amount,
		IdempotencyKey: key,
		OccurredAt:     occurredAt,
	}
}

func TestRecordAndSum(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, record("k1", 10_000, fake.Now()))
	require.NoError(t, err)
	_, err = svc.Record(ctx, record("k2", 25_000, fake.Now().Add(time.Hour)))
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	total, err := svc.SumForPeriod(ctx, "ws_1", start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(35_000), total)
}

func TestRecordIsIdempotent(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, record("same", 10_000, fake.Now()))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// Replays change nothing, even with a different amount.
	replay, err := svc.Record(ctx, record("same", 99_999, fake.Now()))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.Event.ID, replay.Event.ID)
	assert.Equal(t, int64(10_000), replay.Event.AmountMinor)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	total, err := svc.SumForPeriod(ctx, "ws_1", start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), total)
}

func TestLateEventRollsIntoOpenPeriod(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	// Reported mid-March for a late-February occurrence, well past the
	// 48h grace window.
	occurredAt := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	res, err := svc.Record(ctx, record("late", 5_000, occurredAt))
	require.NoError(t, err)
	assert.True(t, occurredAt.Equal(res.Event.OccurredAt))
	assert.True(t, fake.Now().Equal(res.Event.EffectiveAt))

	febStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	marStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	febTotal, err := svc.SumForPeriod(ctx, "ws_1", febStart, marStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), febTotal)

	marTotal, err := svc.SumForPeriod(ctx, "ws_1", marStart, marStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), marTotal)
}

func TestTimelyEventKeepsItsPeriod(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	occurredAt := fake.Now().Add(-24 * time.Hour)
	res, err := svc.Record(ctx, record("timely", 5_000, occurredAt))
	require.NoError(t, err)
	assert.True(t, occurredAt.Equal(res.Event.EffectiveAt))
}

func TestRecordValidation(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, record("k1", 0, fake.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Record(ctx, record("", 100, fake.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	req := record("k1", 100, fake.Now())
	req.Source = ""
	_, err = svc.Record(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestRecordKeysAreScopedPerWorkspace(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, record("shared-key", 10_000, fake.Now()))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// The same key from another workspace is its own event.
	req := record("shared-key", 25_000, fake.Now())
	req.WorkspaceID = "ws_2"
	second, err := svc.Record(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.Equal(t, int64(25_000), second.Event.AmountMinor)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	total, err := svc.SumForPeriod(ctx, "ws_2", start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), total)
}
