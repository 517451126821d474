// Package money provides exact integer arithmetic on minor currency units.
// Amounts are int64 minor units (cents); scaling always rounds half-up so the
// same inputs produce the same output on every run.
package money

// MulRatioHalfUp returns amount * num / den rounded half-up to the nearest
// minor unit. den must be positive. Negative amounts round on the magnitude
// and keep their sign, so credits mirror charges exactly.
func MulRatioHalfUp(amount, num, den int64) int64 {
	if den <= 0 {
		return 0
	}
	neg := false
	product := amount * num
	if product < 0 {
		neg = true
		product = -product
	}
	out := (product + den/2) / den
	if neg {
		return -out
	}
	return out
}

// PercentHalfUp returns pct percent of amount, half-up.
func PercentHalfUp(amount, pct int64) int64 {
	return MulRatioHalfUp(amount, pct, 100)
}

// BasisPointsHalfUp returns bps basis points of amount, half-up.
// 100 bps = 1%.
func BasisPointsHalfUp(amount, bps int64) int64 {
	return MulRatioHalfUp(amount, bps, 10_000)
}
