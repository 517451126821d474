// Package server exposes the billing engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	billingdomain "github.com/smallbiznis/bundleworks/internal/billing/domain"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/entitlement"
	"github.com/smallbiznis/bundleworks/internal/events"
	"github.com/smallbiznis/bundleworks/internal/fees"
	obsmetrics "github.com/smallbiznis/bundleworks/internal/observability/metrics"
	"github.com/smallbiznis/bundleworks/internal/pricing"
	"github.com/smallbiznis/bundleworks/internal/quota"
	"github.com/smallbiznis/bundleworks/internal/ratelimit"
	revenuedomain "github.com/smallbiznis/bundleworks/internal/revenue/domain"
	subscriptiondomain "github.com/smallbiznis/bundleworks/internal/subscription/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, srv *Server) {
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	subscriptionSvc subscriptiondomain.Service
	revenueSvc      revenuedomain.Service
	billingSvc      billingdomain.Service
	quotaSvc        *quota.Enforcer
	entitlements    *entitlement.Checker
	pricingEngine   *pricing.Engine
	feeCalculator   *fees.Calculator
	limiter         *ratelimit.ConsumeLimiter
	events          *events.Hub
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	RevenueSvc      revenuedomain.Service
	BillingSvc      billingdomain.Service
	QuotaSvc        *quota.Enforcer
	Entitlements    *entitlement.Checker
	PricingEngine   *pricing.Engine
	FeeCalculator   *fees.Calculator
	Limiter         *ratelimit.ConsumeLimiter `optional:"true"`
	Events          *events.Hub
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		subscriptionSvc: p.SubscriptionSvc,
		revenueSvc:      p.RevenueSvc,
		billingSvc:      p.BillingSvc,
		quotaSvc:        p.QuotaSvc,
		entitlements:    p.Entitlements,
		pricingEngine:   p.PricingEngine,
		feeCalculator:   p.FeeCalculator,
		limiter:         p.Limiter,
		events:          p.Events,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/usage/consume", s.ConsumeUsage)
	v1.GET("/workspaces/:workspace_id/usage/:feature_id", s.GetUsage)
	v1.GET("/workspaces/:workspace_id/events", s.StreamUsageEvents)

	v1.POST("/revenue/events", s.RecordRevenue)

	v1.GET("/workspaces/:workspace_id/capabilities", s.ListCapabilities)
	v1.GET("/workspaces/:workspace_id/capabilities/:capability", s.CheckCapability)

	v1.POST("/pricing/compute", s.ComputePrice)
	v1.POST("/fees/compute", s.ComputeFee)

	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/workspaces/:workspace_id/subscription", s.GetSubscription)
	v1.PUT("/workspaces/:workspace_id/bundles", s.ChangeBundles)
	v1.POST("/workspaces/:workspace_id/subscription/pause", s.PauseSubscription)
	v1.POST("/workspaces/:workspace_id/subscription/resume", s.ResumeSubscription)
	v1.POST("/workspaces/:workspace_id/subscription/cancel", s.CancelSubscription)

	v1.GET("/workspaces/:workspace_id/billing-records", s.ListBillingRecords)

	v1.POST("/webhooks/payment", s.PaymentWebhook)
}
