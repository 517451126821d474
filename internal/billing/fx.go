package billing

import (
	"github.com/smallbiznis/bundleworks/internal/billing/repository"
	"github.com/smallbiznis/bundleworks/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
