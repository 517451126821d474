// Package domain defines the outbound payment gateway port. Card processing
// itself lives with the provider; this engine only issues idempotent charge
// and refund instructions and consumes the asynchronous confirmations.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPaymentFailed    = errors.New("payment_failed")
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidCharge    = errors.New("invalid_charge")
)

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "SUCCEEDED"
	ChargeFailed    ChargeStatus = "FAILED"
)

// ChargeResult is the synchronous outcome of a charge instruction. Providers
// may additionally confirm asynchronously via webhook.
type ChargeResult struct {
	Status         ChargeStatus
	TransactionRef string
}

// Gateway is the payment collaborator. Implementations must honor the
// idempotency key: retrying a charge with the same key never double-charges.
// Calls are expected to be bounded by the passed context's deadline.
type Gateway interface {
	Charge(ctx context.Context, workspaceID string, amountMinor int64, idempotencyKey string) (ChargeResult, error)
	Refund(ctx context.Context, transactionRef string, amountMinor int64) error
}

// Factory builds a gateway for a named provider.
type Factory interface {
	Provider() string
	NewGateway() (Gateway, error)
}

// WebhookEvent is the canonical asynchronous charge confirmation parsed at
// the HTTP edge.
type WebhookEvent struct {
	Provider       string    `json:"provider"`
	EventID        string    `json:"event_id"`
	WorkspaceID    string    `json:"workspace_id"`
	TransactionRef string    `json:"transaction_ref"`
	Succeeded      bool      `json:"succeeded"`
	AmountMinor    int64     `json:"amount_minor"`
	OccurredAt     time.Time `json:"occurred_at"`
}
