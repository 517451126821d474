package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/bundleworks/internal/cycle"
)

var (
	ErrInvalidWorkspace      = errors.New("invalid_workspace")
	ErrInvalidTier           = errors.New("invalid_plan_tier")
	ErrNotFound              = errors.New("subscription_not_found")
	ErrAlreadyExists         = errors.New("subscription_already_exists")
	ErrStateConflict         = errors.New("subscription_state_conflict")
	ErrInvalidTransition     = errors.New("invalid_transition")
	ErrBundleChangeForbidden = errors.New("bundle_change_forbidden")
	ErrPaymentMethodRequired = errors.New("payment_method_required")
)

type CreateRequest struct {
	WorkspaceID         string         `json:"workspace_id"`
	BundleCodes         []string       `json:"bundle_codes"`
	Interval            cycle.Interval `json:"interval"`
	PlanTier            PlanTier       `json:"plan_tier"`
	PaymentMethodOnFile bool           `json:"payment_method_on_file"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

type ChangeBundlesRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	BundleCodes []string `json:"bundle_codes"`
}

// ProrationResult reports the money movement caused by a mid-cycle bundle
// change. Amounts are minor units; a positive ProratedAmount was charged
// immediately, a negative one was credited toward the next invoice.
type ProrationResult struct {
	OldTotal       int64  `json:"old_total"`
	NewTotal       int64  `json:"new_total"`
	Delta          int64  `json:"delta"`
	DaysRemaining  int64  `json:"days_remaining"`
	DaysInCycle    int64  `json:"days_in_cycle"`
	ProratedAmount int64  `json:"prorated_amount"`
	Charged        bool   `json:"charged"`
	CreditApplied  int64  `json:"credit_applied"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// View is the read model consumed by quota and entitlement checks.
type View struct {
	WorkspaceID string
	Status      Status
	PlanTier    PlanTier
	Interval    cycle.Interval
	AnchorAt    time.Time
	BundleCodes []string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Subscription, error)
	GetByWorkspace(ctx context.Context, workspaceID string) (View, error)
	ChangeBundles(ctx context.Context, req ChangeBundlesRequest) (ProrationResult, error)
	Pause(ctx context.Context, workspaceID string) error
	Resume(ctx context.Context, workspaceID string) error
	Cancel(ctx context.Context, workspaceID string) error
	// RecordChargeOutcome applies a recurring-charge result from the payment
	// collaborator: success promotes trialing/past_due to active, failure
	// moves toward past_due and eventually paused.
	RecordChargeOutcome(ctx context.Context, workspaceID string, succeeded bool) error
	// CurrentCycle derives the usage cycle containing now.
	CurrentCycle(ctx context.Context, workspaceID string) (cycle.Window, string, error)
}
