package meter

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/meter/domain"
	"github.com/smallbiznis/bundleworks/internal/meter/repository"
	"github.com/smallbiznis/bundleworks/internal/meter/service"
	"github.com/smallbiznis/bundleworks/internal/meter/store"
	"go.uber.org/fx"
)

// newCounterStore picks Redis when an address is configured, otherwise the
// in-process store. Multi-node deployments need Redis for counters to be
// shared.
func newCounterStore(cfg config.Config) domain.CounterStore {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return store.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return store.NewRedisStore(client)
}

var Module = fx.Module("meter.service",
	fx.Provide(newCounterStore),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
