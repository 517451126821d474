package store

import (
	"context"
	"sync"

	"github.com/smallbiznis/bundleworks/internal/meter/domain"
)

// MemoryStore keeps counters in process memory. A single mutex guards the
// whole map: contention is per decision, not per request body, and the
// critical section is a few map operations.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	seen     map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]int64),
		seen:     make(map[string]int64),
	}
}

func (s *MemoryStore) Apply(ctx context.Context, key, idempotencyKey string, amount, limit, warnAt int64) (domain.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenKey := key + ":idem:" + idempotencyKey
	if total, ok := s.seen[seenKey]; ok {
		return domain.ApplyResult{Allowed: true, Duplicate: true, NewTotal: total}, nil
	}

	total := s.counters[key]
	if limit >= 0 && total+amount > limit {
		return domain.ApplyResult{Allowed: false, NewTotal: total}, nil
	}

	newTotal := total + amount
	s.counters[key] = newTotal
	s.seen[seenKey] = newTotal

	return domain.ApplyResult{
		Allowed:      true,
		NewTotal:     newTotal,
		CrossedWarn:  warnAt >= 0 && total < warnAt && newTotal >= warnAt,
		CrossedBlock: limit >= 0 && total < limit && newTotal >= limit,
	}, nil
}

func (s *MemoryStore) Total(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}
