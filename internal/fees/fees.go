// Package fees computes the platform's cut of a processed transaction.
package fees

import (
	"errors"
	"strings"

	"github.com/smallbiznis/bundleworks/internal/config"
	"github.com/smallbiznis/bundleworks/internal/money"
)

var (
	ErrUnknownTier   = errors.New("unknown_plan_tier")
	ErrInvalidAmount = errors.New("invalid_amount")
)

// Breakdown splits a transaction into the platform fee and the amount the
// workspace keeps. Minor units, half-up on the fee.
type Breakdown struct {
	Amount      int64  `json:"amount"`
	PlanTier    string `json:"plan_tier"`
	FeeRateBps  int64  `json:"fee_rate_bps"`
	PlatformFee int64  `json:"platform_fee"`
	NetAmount   int64  `json:"net_amount"`
}

type Calculator struct {
	policy *config.BillingPolicyHolder
}

func NewCalculator(policy *config.BillingPolicyHolder) *Calculator {
	return &Calculator{policy: policy}
}

// ComputeFee is stateless and deterministic. An unknown tier is a caller
// programming error, reported as ErrUnknownTier rather than silently
// defaulting to some rate.
func (c *Calculator) ComputeFee(amount int64, planTier string) (Breakdown, error) {
	if amount < 0 {
		return Breakdown{}, ErrInvalidAmount
	}

	tier := strings.ToLower(strings.TrimSpace(planTier))
	rate, ok := c.policy.Get().FeeRatesBps[tier]
	if !ok {
		return Breakdown{}, ErrUnknownTier
	}

	fee := money.BasisPointsHalfUp(amount, rate)
	return Breakdown{
		Amount:      amount,
		PlanTier:    tier,
		FeeRateBps:  rate,
		PlatformFee: fee,
		NetAmount:   amount - fee,
	}, nil
}
