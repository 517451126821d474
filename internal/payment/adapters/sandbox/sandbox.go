// Package sandbox is an in-memory payment gateway for development and
// tests. Charges always succeed unless a failure is scripted, and repeat
// charges with the same idempotency key return the original result.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/smallbiznis/bundleworks/internal/payment/domain"
)

type Factory struct{}

func (Factory) Provider() string { return "sandbox" }

func (Factory) NewGateway() (domain.Gateway, error) {
	return New(), nil
}

type charge struct {
	result      domain.ChargeResult
	workspaceID string
	amount      int64
}

type Gateway struct {
	mu      sync.Mutex
	charges map[string]charge // keyed by idempotency key
	refunds map[string]int64  // keyed by transaction ref

	failNext int
}

func New() *Gateway {
	return &Gateway{
		charges: make(map[string]charge),
		refunds: make(map[string]int64),
	}
}

// FailNext scripts the next n charge attempts to fail.
func (g *Gateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

func (g *Gateway) Charge(ctx context.Context, workspaceID string, amountMinor int64, idempotencyKey string) (domain.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChargeResult{}, err
	}
	if workspaceID == "" || amountMinor <= 0 || idempotencyKey == "" {
		return domain.ChargeResult{}, domain.ErrInvalidCharge
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.charges[idempotencyKey]; ok {
		return existing.result, nil
	}

	if g.failNext > 0 {
		g.failNext--
		return domain.ChargeResult{Status: domain.ChargeFailed}, domain.ErrPaymentFailed
	}

	result := domain.ChargeResult{
		Status:         domain.ChargeSucceeded,
		TransactionRef: fmt.Sprintf("sbx_%s", uuid.NewString()),
	}
	g.charges[idempotencyKey] = charge{result: result, workspaceID: workspaceID, amount: amountMinor}
	return result, nil
}

func (g *Gateway) Refund(ctx context.Context, transactionRef string, amountMinor int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if transactionRef == "" || amountMinor <= 0 {
		return domain.ErrInvalidCharge
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds[transactionRef] += amountMinor
	return nil
}

// ChargeCount reports how many distinct charges were applied; tests use it
// to assert idempotency.
func (g *Gateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}
