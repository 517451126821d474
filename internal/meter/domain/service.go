package domain

import (
	"context"
	"time"
)

type Service interface {
	// Consume atomically counts the request against its cycle counter and
	// journals the accepted event. Duplicates by idempotency key are
	// acknowledged without a second increment.
	Consume(ctx context.Context, req ConsumeRequest) (ConsumeResult, error)
	// TotalForCycle reads the live counter, falling back to the journal
	// when the counter is absent.
	TotalForCycle(ctx context.Context, workspaceID, featureID, cycleID string) (int64, error)
	// CloseCycle resets the live counter for a finished cycle; the journal
	// keeps the history.
	CloseCycle(ctx context.Context, ref CycleRef) error
	// ClosableCycles lists counter scopes with events recorded before the
	// cutoff, candidates for a close sweep.
	ClosableCycles(ctx context.Context, before time.Time) ([]CycleRef, error)
}
