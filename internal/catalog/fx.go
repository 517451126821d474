package catalog

import (
	"github.com/smallbiznis/bundleworks/internal/config"
	"go.uber.org/fx"
)

func provide(cfg config.Config) (*Catalog, error) {
	return Load(cfg.CatalogPath)
}

var Module = fx.Module("catalog",
	fx.Provide(provide),
)
