package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/bundleworks/internal/billing/domain"
	billingrepository "github.com/smallbiznis/bundleworks/internal/billing/repository"
	billingservice "github.com/smallbiznis/bundleworks/internal/billing/service"
	"github.com/smallbiznis/bundleworks/internal/cache"
	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/entitlement"
	"github.com/smallbiznis/bundleworks/internal/events"
	"github.com/smallbiznis/bundleworks/internal/fees"
	meterdomain "github.com/smallbiznis/bundleworks/internal/meter/domain"
	meterrepository "github.com/smallbiznis/bundleworks/internal/meter/repository"
	meterservice "github.com/smallbiznis/bundleworks/internal/meter/service"
	"github.com/smallbiznis/bundleworks/internal/meter/store"
	"github.com/smallbiznis/bundleworks/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/bundleworks/internal/pricing"
	"github.com/smallbiznis/bundleworks/internal/quota"
	revenuedomain "github.com/smallbiznis/bundleworks/internal/revenue/domain"
	revenuerepository "github.com/smallbiznis/bundleworks/internal/revenue/repository"
	revenueservice "github.com/smallbiznis/bundleworks/internal/revenue/service"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/bundleworks/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/bundleworks/internal/subscription/service"
)

type fixture struct {
	srv     *Server
	subs    subscriptiondomain.Service
	clock   *clock.FakeClock
	gateway *sandbox.Gateway
}

func newFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.SubscriptionBundle{},
		&meterdomain.UsageEvent{},
		&revenuedomain.RevenueEvent{},
		&billingdomain.BillingRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cat, err := catalog.New(catalog.DefaultBundles())
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gateway := sandbox.New()
	policy := config.NewStaticBillingPolicyHolder(config.DefaultBillingPolicy())
	engine := pricing.NewEngine(cat)
	subRepo := subscriptionrepository.Provide()
	log := zap.NewNop()

	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Repo:    subRepo,
		Catalog: cat,
		Pricing: engine,
		Policy:  policy,
		Gateway: gateway,
	})

	revenue := revenueservice.NewService(revenueservice.ServiceParam{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  fake,
		Repo:   revenuerepository.Provide(),
		Policy: policy,
	})

	billing := billingservice.NewService(billingservice.ServiceParam{
		DB:            db,
		Log:           log,
		Clock:         fake,
		Repo:          billingrepository.Provide(),
		Subscriptions: subs,
		SubRepo:       subRepo,
		Revenue:       revenue,
		Policy:        policy,
		Gateway:       gateway,
	})

	hub := events.NewHub()
	meter := meterservice.NewService(meterservice.ServiceParam{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Counters: store.NewMemoryStore(),
		Repo:     meterrepository.Provide(),
		Hub:      hub,
	})

	// One resolver cache for both, as the fx module wires it.
	resolver := cache.NewEntitlementResolverCache()
	enforcer := quota.NewEnforcer(quota.EnforcerParam{
		Log:           log,
		Clock:         fake,
		Catalog:       cat,
		Subscriptions: subs,
		Meter:         meter,
		Cache:         resolver,
	})

	checker := entitlement.NewChecker(entitlement.CheckerParam{
		Log:           log,
		Catalog:       cat,
		Subscriptions: subs,
		Cache:         resolver,
	})

	srv := NewServer(ServerParams{
		Gin:             NewEngine(),
		Cfg:             config.Config{},
		Log:             log,
		SubscriptionSvc: subs,
		RevenueSvc:      revenue,
		BillingSvc:      billing,
		QuotaSvc:        enforcer,
		Entitlements:    checker,
		PricingEngine:   engine,
		FeeCalculator:   fees.NewCalculator(policy),
		Events:          hub,
	})

	return &fixture{srv: srv, subs: subs, clock: fake, gateway: gateway}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (f *fixture) createWorkspace(t *testing.T, workspaceID string, bundles []string) {
	rec := f.do(t, http.MethodPost, "/v1/subscriptions", subscriptiondomain.CreateRequest{
		WorkspaceID:         workspaceID,
		BundleCodes:         bundles,
		Interval:            "monthly",
		PlanTier:            subscriptiondomain.TierStandard,
		PaymentMethodOnFile: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSubscription(t *testing.T) {
	f := newFixture(t)

	f.createWorkspace(t, "ws_1", []string{"creator"})

	// One subscription per workspace.
	rec := f.do(t, http.MethodPost, "/v1/subscriptions", subscriptiondomain.CreateRequest{
		WorkspaceID: "ws_1",
		BundleCodes: []string{"creator"},
		Interval:    "monthly",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/subscriptions", subscriptiondomain.CreateRequest{
		WorkspaceID: "ws_2",
		BundleCodes: []string{"no_such_bundle"},
		Interval:    "monthly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsumeUsage(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_usage", []string{"creator"})

	var result quota.Result
	rec := f.do(t, http.MethodPost, "/v1/usage/consume", quota.ConsumeRequest{
		WorkspaceID:    "ws_usage",
		FeatureID:      "social.posts",
		Amount:         10,
		IdempotencyKey: "evt-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(10), result.NewTotal)
	assert.Equal(t, int64(490), result.Remaining)

	// Replay is deduplicated, not double counted.
	rec = f.do(t, http.MethodPost, "/v1/usage/consume", quota.ConsumeRequest{
		WorkspaceID:    "ws_usage",
		FeatureID:      "social.posts",
		Amount:         10,
		IdempotencyKey: "evt-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &result)
	assert.True(t, result.Deduplicated)
	assert.Equal(t, int64(10), result.NewTotal)
}

func TestConsumeUsageQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_cap", []string{"creator"})

	rec := f.do(t, http.MethodPost, "/v1/usage/consume", quota.ConsumeRequest{
		WorkspaceID:    "ws_cap",
		FeatureID:      "social.posts",
		Amount:         500,
		IdempotencyKey: "evt-fill",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/usage/consume", quota.ConsumeRequest{
		WorkspaceID:    "ws_cap",
		FeatureID:      "social.posts",
		Amount:         1,
		IdempotencyKey: "evt-over",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var payload struct {
		Error  string       `json:"error"`
		Result quota.Result `json:"result"`
	}
	decode(t, rec, &payload)
	assert.Equal(t, "quota_exceeded", payload.Error)
	assert.False(t, payload.Result.Allowed)
	assert.Equal(t, int64(500), payload.Result.NewTotal)
}

func TestConsumeUsageUnknownFeatureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_unknown", []string{"creator"})

	rec := f.do(t, http.MethodPost, "/v1/usage/consume", quota.ConsumeRequest{
		WorkspaceID:    "ws_unknown",
		FeatureID:      "nonexistent.feature",
		Amount:         1,
		IdempotencyKey: "evt-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestComputePrice(t *testing.T) {
	f := newFixture(t)

	var breakdown pricing.Breakdown
	rec := f.do(t, http.MethodPost, "/v1/pricing/compute", computePriceRequest{
		BundleCodes: []string{"creator", "ecommerce"},
		Interval:    "monthly",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &breakdown)
	assert.Equal(t, int64(15), breakdown.DiscountPct)
	assert.Equal(t, breakdown.Subtotal-breakdown.DiscountAmount, breakdown.Total)

	rec = f.do(t, http.MethodPost, "/v1/pricing/compute", computePriceRequest{
		BundleCodes: []string{"bogus"},
		Interval:    "monthly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/pricing/compute", computePriceRequest{
		BundleCodes: []string{"creator"},
		Interval:    "weekly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComputeFee(t *testing.T) {
	f := newFixture(t)

	var breakdown fees.Breakdown
	rec := f.do(t, http.MethodPost, "/v1/fees/compute", computeFeeRequest{
		AmountMinor: 10_000,
		PlanTier:    "standard",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &breakdown)
	assert.Equal(t, int64(240), breakdown.PlatformFee)
	assert.Equal(t, int64(9_760), breakdown.NetAmount)

	rec = f.do(t, http.MethodPost, "/v1/fees/compute", computeFeeRequest{
		AmountMinor: 10_000,
		PlanTier:    "platinum",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCapabilities(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_cap2", []string{"creator"})

	var decision entitlement.Decision
	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws_cap2/capabilities/social.schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &decision)
	assert.True(t, decision.Granted)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws_cap2/capabilities/marketplace.sell", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &decision)
	assert.False(t, decision.Granted)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws_missing/capabilities/social.schedule", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordRevenue(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_rev", []string{"creator"})

	body := revenuedomain.RecordRequest{
		WorkspaceID:    "ws_rev",
		Source:         "store.orders",
		AmountMinor:    25_000,
		IdempotencyKey: "order-77",
		OccurredAt:     f.clock.Now(),
	}

	var result revenuedomain.RecordResult
	rec := f.do(t, http.MethodPost, "/v1/revenue/events", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.False(t, result.Duplicate)

	rec = f.do(t, http.MethodPost, "/v1/revenue/events", body)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &result)
	assert.True(t, result.Duplicate)

	body.AmountMinor = -5
	body.IdempotencyKey = "order-78"
	rec = f.do(t, http.MethodPost, "/v1/revenue/events", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptionLifecycleRoutes(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_life", []string{"creator"})
	require.NoError(t, f.subs.RecordChargeOutcome(context.Background(), "ws_life", true))

	var view subscriptiondomain.View
	rec := f.do(t, http.MethodPost, "/v1/workspaces/ws_life/subscription/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &view)
	assert.Equal(t, subscriptiondomain.StatusPaused, view.Status)

	// Paused workspaces cannot change bundles.
	rec = f.do(t, http.MethodPut, "/v1/workspaces/ws_life/bundles", changeBundlesRequest{
		BundleCodes: []string{"creator", "ecommerce"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/workspaces/ws_life/subscription/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, subscriptiondomain.StatusActive, view.Status)

	rec = f.do(t, http.MethodPost, "/v1/workspaces/ws_life/subscription/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, subscriptiondomain.StatusCanceled, view.Status)

	rec = f.do(t, http.MethodPost, "/v1/workspaces/ws_life/subscription/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChangeBundlesRoute(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_change", []string{"creator"})

	var result subscriptiondomain.ProrationResult
	rec := f.do(t, http.MethodPut, "/v1/workspaces/ws_change/bundles", changeBundlesRequest{
		BundleCodes: []string{"creator", "ecommerce"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.Positive(t, result.Delta)
	assert.True(t, result.Charged)
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_hook", []string{"creator"})

	rec := f.do(t, http.MethodPost, "/v1/webhooks/payment", map[string]any{
		"provider":     "sandbox",
		"event_id":     "evt_1",
		"workspace_id": "ws_hook",
		"succeeded":    true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view, err := f.subs.GetByWorkspace(context.Background(), "ws_hook")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, view.Status)

	rec = f.do(t, http.MethodPost, "/v1/webhooks/payment", map[string]any{
		"provider":  "sandbox",
		"event_id":  "evt_2",
		"succeeded": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBillingRecordsRoute(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_rec", []string{"creator"})

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws_rec/billing-records", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		WorkspaceID string                        `json:"workspace_id"`
		Records     []billingdomain.BillingRecord `json:"records"`
	}
	decode(t, rec, &payload)
	assert.Equal(t, "ws_rec", payload.WorkspaceID)
	assert.Empty(t, payload.Records)
}

func TestErrorPayloadShape(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws_none/subscription", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var payload errorResponse
	decode(t, rec, &payload)
	assert.Equal(t, "not_found", payload.Error.Type)
}

func TestStreamUsageEventsReplaysRecentCrossings(t *testing.T) {
	f := newFixture(t)
	f.createWorkspace(t, "ws_sse", []string{"creator"})

	// 450 of 500 crosses the 80% warning threshold.
	rec := f.do(t, http.MethodPost, "/v1/usage/consume", quota.ConsumeRequest{
		WorkspaceID:    "ws_sse",
		FeatureID:      "social.posts",
		Amount:         450,
		IdempotencyKey: "evt-sse-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A pre-canceled context makes the handler flush the replay buffer and
	// return instead of holding the stream open.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/workspaces/ws_sse/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), events.TypeWarning)
	assert.Contains(t, w.Body.String(), "social.posts")
}
