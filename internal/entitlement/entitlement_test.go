package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/bundleworks/internal/cache"
	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSubscriptions struct {
	view  subscriptiondomain.View
	err   error
	calls int
}

func (s *stubSubscriptions) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}
func (s *stubSubscriptions) GetByWorkspace(ctx context.Context, workspaceID string) (subscriptiondomain.View, error) {
	s.calls++
	return s.view, s.err
}
func (s *stubSubscriptions) ChangeBundles(ctx context.Context, req subscriptiondomain.ChangeBundlesRequest) (subscriptiondomain.ProrationResult, error) {
	return subscriptiondomain.ProrationResult{}, nil
}
func (s *stubSubscriptions) Pause(ctx context.Context, workspaceID string) error  { return nil }
func (s *stubSubscriptions) Resume(ctx context.Context, workspaceID string) error { return nil }
func (s *stubSubscriptions) Cancel(ctx context.Context, workspaceID string) error { return nil }
func (s *stubSubscriptions) RecordChargeOutcome(ctx context.Context, workspaceID string, succeeded bool) error {
	return nil
}
func (s *stubSubscriptions) CurrentCycle(ctx context.Context, workspaceID string) (cycle.Window, string, error) {
	return cycle.Window{}, "", nil
}

func newChecker(t *testing.T, subs *stubSubscriptions) *Checker {
	cat, err := catalog.New(catalog.DefaultBundles())
	require.NoError(t, err)
	return NewChecker(CheckerParam{
		Log:           zap.NewNop(),
		Catalog:       cat,
		Subscriptions: subs,
		Cache:         cache.NewEntitlementResolverCache(),
	})
}

func view(status subscriptiondomain.Status, codes ...string) subscriptiondomain.View {
	return subscriptiondomain.View{
		WorkspaceID: "ws_1",
		Status:      status,
		Interval:    cycle.IntervalMonthly,
		AnchorAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		BundleCodes: codes,
	}
}

func TestCheckGrantsDeclaredCapability(t *testing.T) {
	c := newChecker(t, &stubSubscriptions{view: view(subscriptiondomain.StatusActive, "creator")})

	d, err := c.Check(context.Background(), "ws_1", "social.schedule")
	require.NoError(t, err)
	assert.True(t, d.Granted)
	assert.True(t, d.Declared)
}

func TestCheckDeniesUndeclaredCapability(t *testing.T) {
	c := newChecker(t, &stubSubscriptions{view: view(subscriptiondomain.StatusActive, "creator")})

	d, err := c.Check(context.Background(), "ws_1", "crm.pipelines")
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.False(t, d.Declared)
}

func TestCheckDeniesWhenNotEntitled(t *testing.T) {
	for _, status := range []subscriptiondomain.Status{
		subscriptiondomain.StatusPaused,
		subscriptiondomain.StatusPastDue,
		subscriptiondomain.StatusCanceled,
	} {
		c := newChecker(t, &stubSubscriptions{view: view(status, "creator")})
		d, err := c.Check(context.Background(), "ws_1", "social.schedule")
		require.NoError(t, err)
		assert.False(t, d.Granted, "status %s", status)
		assert.True(t, d.Declared, "status %s", status)
	}
}

func TestCheckTrialingIsEntitled(t *testing.T) {
	c := newChecker(t, &stubSubscriptions{view: view(subscriptiondomain.StatusTrialing, "creator")})

	d, err := c.Check(context.Background(), "ws_1", "social.schedule")
	require.NoError(t, err)
	assert.True(t, d.Granted)
}

func TestCapabilitiesDeduplicatesAcrossBundles(t *testing.T) {
	// creator and social both declare social.schedule.
	c := newChecker(t, &stubSubscriptions{view: view(subscriptiondomain.StatusActive, "creator", "social")})

	capabilities, err := c.Capabilities(context.Background(), "ws_1")
	require.NoError(t, err)

	count := 0
	for _, capability := range capabilities {
		if capability == "social.schedule" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Contains(t, capabilities, "social.inbox")
}

func TestCheckUsesCachedViewUntilInvalidated(t *testing.T) {
	subs := &stubSubscriptions{view: view(subscriptiondomain.StatusActive, "creator")}
	c := newChecker(t, subs)
	ctx := context.Background()

	_, err := c.Check(ctx, "ws_1", "social.schedule")
	require.NoError(t, err)
	_, err = c.Check(ctx, "ws_1", "social.schedule")
	require.NoError(t, err)
	assert.Equal(t, 1, subs.calls)

	c.Invalidate("ws_1")
	_, err = c.Check(ctx, "ws_1", "social.schedule")
	require.NoError(t, err)
	assert.Equal(t, 2, subs.calls)
}
