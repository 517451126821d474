package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/bundleworks/internal/billing"
	"github.com/smallbiznis/bundleworks/internal/cache"
	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/clock"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/entitlement"
	"github.com/smallbiznis/bundleworks/internal/events"
	"github.com/smallbiznis/bundleworks/internal/fees"
	"github.com/smallbiznis/bundleworks/internal/logger"
	"github.com/smallbiznis/bundleworks/internal/meter"
	"github.com/smallbiznis/bundleworks/internal/migration"
	"github.com/smallbiznis/bundleworks/internal/payment"
	"github.com/smallbiznis/bundleworks/internal/pricing"
	"github.com/smallbiznis/bundleworks/internal/quota"
	"github.com/smallbiznis/bundleworks/internal/ratelimit"
	"github.com/smallbiznis/bundleworks/internal/revenue"
	"github.com/smallbiznis/bundleworks/internal/scheduler"
	"github.com/smallbiznis/bundleworks/internal/server"
	"github.com/smallbiznis/bundleworks/internal/subscription"
	"github.com/smallbiznis/bundleworks/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		catalog.Module,
		pricing.Module,
		fees.Module,
		payment.Module,
		events.Module,
		cache.Module,

		subscription.Module,
		meter.Module,
		quota.Module,
		entitlement.Module,
		revenue.Module,
		billing.Module,

		ratelimit.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
