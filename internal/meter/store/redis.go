// Package store provides CounterStore implementations: a Redis-backed one
// for shared deployments and an in-process one for single-node and test use.
package store

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bundleworks/internal/meter/domain"
)

// applyScript runs the whole consume decision inside Redis: duplicate
// lookup, cap check, increment, and threshold flags in one atomic step.
// KEYS[1] is the counter, KEYS[2] the idempotency marker. The marker holds
// the counter total at first application so a replay reports the result it
// originally computed, not the live counter.
const applyScript = `
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local warn = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local seen = redis.call("GET", KEYS[2])
if seen then
  return {1, tonumber(seen), 1, 0, 0}
end

local total = tonumber(redis.call("GET", KEYS[1]) or "0")

if limit >= 0 and total + amount > limit then
  return {0, total, 0, 0, 0}
end

local new = redis.call("INCRBY", KEYS[1], amount)
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("SET", KEYS[2], tostring(new), "PX", ttl)

local warned = 0
local blocked = 0
if warn >= 0 and total < warn and new >= warn then
  warned = 1
end
if limit >= 0 and total < limit and new >= limit then
  blocked = 1
end
return {1, new, 0, warned, blocked}
`

// counterTTL outlives any cycle the counter can belong to; closed cycles
// are reset explicitly and stragglers age out.
const counterTTL = 62 * 24 * time.Hour

type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(applyScript),
	}
}

func (s *RedisStore) Apply(ctx context.Context, key, idempotencyKey string, amount, limit, warnAt int64) (domain.ApplyResult, error) {
	if s == nil || s.client == nil {
		return domain.ApplyResult{}, errors.New("counter store not configured")
	}
	if key == "" {
		return domain.ApplyResult{}, errors.New("counter key is empty")
	}

	res, err := s.script.Run(
		ctx,
		s.client,
		[]string{key, key + ":idem:" + idempotencyKey},
		amount,
		limit,
		warnAt,
		int64(counterTTL/time.Millisecond),
	).Slice()
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if len(res) < 5 {
		return domain.ApplyResult{}, errors.New("invalid counter script response")
	}

	return domain.ApplyResult{
		Allowed:      castToInt(res[0]) == 1,
		NewTotal:     castToInt(res[1]),
		Duplicate:    castToInt(res[2]) == 1,
		CrossedWarn:  castToInt(res[3]) == 1,
		CrossedBlock: castToInt(res[4]) == 1,
	}, nil
}

func (s *RedisStore) Total(ctx context.Context, key string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("counter store not configured")
	}
	total, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errors.New("counter store not configured")
	}
	return s.client.Del(ctx, key).Err()
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
