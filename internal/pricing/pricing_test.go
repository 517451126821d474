package pricing

import (
	"testing"

	"github.com/smallbiznis/bundleworks/internal/catalog"
	"github.com/smallbiznis/bundleworks/internal/cycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	c, err := catalog.New([]catalog.Bundle{
		{Code: "creator", Name: "Creator", BasePrice: 2900},
		{Code: "ecommerce", Name: "E-Commerce", BasePrice: 4900},
		{Code: "social", Name: "Social", BasePrice: 3900},
		{Code: "crm", Name: "CRM", BasePrice: 5900},
	})
	require.NoError(t, err)
	return NewEngine(c)
}

func TestComputePriceTwoBundlesMonthly(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator", "ecommerce"}, cycle.IntervalMonthly)
	require.NoError(t, err)

	assert.Equal(t, int64(7800), got.Subtotal)
	assert.Equal(t, int64(15), got.DiscountPct)
	assert.Equal(t, int64(1170), got.DiscountAmount)
	assert.Equal(t, int64(6630), got.Total)
}

func TestComputePriceThreeBundlesMonthly(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator", "ecommerce", "social"}, cycle.IntervalMonthly)
	require.NoError(t, err)

	assert.Equal(t, int64(11700), got.Subtotal)
	assert.Equal(t, int64(25), got.DiscountPct)
	assert.Equal(t, int64(2925), got.DiscountAmount)
	assert.Equal(t, int64(8775), got.Total)
}

func TestComputePriceFourBundles(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator", "ecommerce", "social", "crm"}, cycle.IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(35), got.DiscountPct)
}

func TestComputePriceSingleBundleNoDiscount(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator"}, cycle.IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.DiscountPct)
	assert.Equal(t, int64(2900), got.Total)
}

func TestComputePriceDuplicatesCollapse(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator", "creator"}, cycle.IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(2900), got.Subtotal)
	assert.Equal(t, int64(0), got.DiscountPct)
}

func TestComputePriceEmptySelectionIsFreeTier(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice(nil, cycle.IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Subtotal)
	assert.Equal(t, int64(0), got.Total)
}

func TestComputePriceAnnualTwoFreeMonths(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator"}, cycle.IntervalAnnual)
	require.NoError(t, err)

	// 12 x $29.00 = $348.00 subtotal, no bundle discount, x10/12 = $290.00.
	assert.Equal(t, int64(34800), got.Subtotal)
	assert.Equal(t, int64(29000), got.Total)
}

func TestComputePriceAnnualAfterDiscount(t *testing.T) {
	e := testEngine(t)

	got, err := e.ComputePrice([]string{"creator", "ecommerce"}, cycle.IntervalAnnual)
	require.NoError(t, err)

	// 12 x $78.00 = $936.00, 15% = $140.40, then x10/12 of $795.60 = $663.00.
	assert.Equal(t, int64(93600), got.Subtotal)
	assert.Equal(t, int64(14040), got.DiscountAmount)
	assert.Equal(t, int64(66300), got.Total)
}

func TestComputePriceUnknownBundle(t *testing.T) {
	e := testEngine(t)

	_, err := e.ComputePrice([]string{"creator", "missing"}, cycle.IntervalMonthly)
	assert.ErrorIs(t, err, catalog.ErrInvalidBundle)
}

func TestComputePriceDeterministic(t *testing.T) {
	e := testEngine(t)

	a, err := e.ComputePrice([]string{"social", "creator"}, cycle.IntervalMonthly)
	require.NoError(t, err)
	b, err := e.ComputePrice([]string{"social", "creator"}, cycle.IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDiscountPct(t *testing.T) {
	assert.Equal(t, int64(0), DiscountPct(0))
	assert.Equal(t, int64(0), DiscountPct(1))
	assert.Equal(t, int64(15), DiscountPct(2))
	assert.Equal(t, int64(25), DiscountPct(3))
	assert.Equal(t, int64(35), DiscountPct(4))
	assert.Equal(t, int64(35), DiscountPct(7))
}
