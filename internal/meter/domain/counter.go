package domain

import "context"

// ApplyResult is the outcome of one atomic counter application.
type ApplyResult struct {
	Allowed      bool
	Duplicate    bool
	NewTotal     int64
	CrossedWarn  bool
	CrossedBlock bool
}

// CounterStore applies increments atomically: the idempotency check, the
// limit check, the increment, and the threshold-crossing detection happen
// as one operation so concurrent consumers never overshoot the limit and
// each threshold fires exactly once.
type CounterStore interface {
	// Apply counts amount against key. warnAt and limit below zero disable
	// the respective checks. The idempotency key is only consumed when the
	// increment is accepted, so a denied request may retry later.
	Apply(ctx context.Context, key, idempotencyKey string, amount, limit, warnAt int64) (ApplyResult, error)
	// Total returns the current counter value, zero when absent.
	Total(ctx context.Context, key string) (int64, error)
	// Reset clears the counter, used when a cycle closes.
	Reset(ctx context.Context, key string) error
}
