package pricing

import "github.com/smallbiznis/bundleworks/internal/cycle"

// DiscountPct returns the multi-bundle discount percentage for a selection
// of distinct bundles. Stacking bundles is the platform's main upsell lever,
// so the curve is steep and flattens at four.
func DiscountPct(bundleCount int) int64 {
	switch {
	case bundleCount >= 4:
		return 35
	case bundleCount == 3:
		return 25
	case bundleCount == 2:
		return 15
	default:
		return 0
	}
}

// intervalRatio returns the price multiplier for a billing interval as a
// num/den pair. Annual billing grants two free months (x10/12), applied
// after the bundle discount.
func intervalRatio(interval cycle.Interval) (num, den int64) {
	if interval == cycle.IntervalAnnual {
		return 10, 12
	}
	return 1, 1
}
