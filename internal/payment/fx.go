package payment

import (
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/payment/adapters"
	"github.com/smallbiznis/bundleworks/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/bundleworks/internal/payment/domain"
	"go.uber.org/fx"
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(sandbox.Factory{})
}

func newGateway(cfg config.Config, registry *adapters.Registry) (domain.Gateway, error) {
	return registry.NewGateway(cfg.PaymentProvider)
}

var Module = fx.Module("payment",
	fx.Provide(newRegistry),
	fx.Provide(newGateway),
)
