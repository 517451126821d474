// Package pricing computes subscription price breakdowns from a bundle
// selection. All computation is pure integer arithmetic on minor units; the
// same selection always produces the same breakdown.
package pricing

import (
	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	"github.com/smallbiznis/bundleworks/internal/money"
)

// Breakdown is the price of one billing cycle for a bundle selection.
// Amounts are minor units. For annual billing the subtotal covers twelve
// months and Total reflects the two-free-months multiplier.
type Breakdown struct {
	BundleCodes    []string       `json:"bundle_codes"`
	Interval       cycle.Interval `json:"interval"`
	Subtotal       int64          `json:"subtotal"`
	DiscountPct    int64          `json:"discount_pct"`
	DiscountAmount int64          `json:"discount_amount"`
	Total          int64          `json:"total"`
}

type Engine struct {
	catalog *catalog.Catalog
}

func NewEngine(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// ComputePrice prices a selection of bundles for one billing cycle.
// Duplicate codes collapse; the empty selection is the zero-cost free tier.
// Unknown codes fail with catalog.ErrInvalidBundle.
func (e *Engine) ComputePrice(codes []string, interval cycle.Interval) (Breakdown, error) {
	if _, err := cycle.ParseInterval(string(interval)); err != nil {
		return Breakdown{}, err
	}

	bundles, err := e.catalog.Resolve(codes)
	if err != nil {
		return Breakdown{}, err
	}

	var monthly int64
	distinct := make([]string, 0, len(bundles))
	for _, b := range bundles {
		monthly += b.BasePrice
		distinct = append(distinct, b.Code)
	}

	months := int64(1)
	if interval == cycle.IntervalAnnual {
		months = 12
	}

	subtotal := monthly * months
	pct := DiscountPct(len(bundles))
	discountAmount := money.PercentHalfUp(subtotal, pct)

	num, den := intervalRatio(interval)
	total := money.MulRatioHalfUp(subtotal-discountAmount, num, den)

	return Breakdown{
		BundleCodes:    distinct,
		Interval:       interval,
		Subtotal:       subtotal,
		DiscountPct:    pct,
		DiscountAmount: discountAmount,
		Total:          total,
	}, nil
}
