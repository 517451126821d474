package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAtMonthly(t *testing.T) {
	anchor := date(2026, time.January, 15)

	w, err := At(anchor, IntervalMonthly, date(2026, time.March, 20))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.March, 15), w.Start)
	assert.Equal(t, date(2026, time.April, 15), w.End)
	assert.Equal(t, "2026-03", w.ID(IntervalMonthly))
	assert.Equal(t, int64(31), w.Days())
}

func TestAtMonthlyAnchorDayClamped(t *testing.T) {
	anchor := date(2026, time.January, 31)

	// February has no 31st; the cycle starting in February anchors on the 28th.
	w, err := At(anchor, IntervalMonthly, date(2026, time.February, 10))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 28), w.End)
	assert.Equal(t, date(2026, time.January, 31), w.Start)

	w, err = At(anchor, IntervalMonthly, date(2026, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 28), w.Start)
	assert.Equal(t, date(2026, time.March, 31), w.End)
}

func TestAtAnnual(t *testing.T) {
	anchor := date(2025, time.June, 1)

	w, err := At(anchor, IntervalAnnual, date(2026, time.February, 3))
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.June, 1), w.Start)
	assert.Equal(t, date(2026, time.June, 1), w.End)
	assert.Equal(t, "2025", w.ID(IntervalAnnual))
}

func TestAtBeforeAnchorClampsToFirstCycle(t *testing.T) {
	anchor := date(2026, time.May, 1)
	w, err := At(anchor, IntervalMonthly, date(2026, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, anchor, w.Start)
}

func TestDaysRemaining(t *testing.T) {
	w := Window{Start: date(2026, time.March, 1), End: date(2026, time.April, 1)}

	assert.Equal(t, int64(31), w.DaysRemaining(date(2026, time.February, 20)))
	assert.Equal(t, int64(31), w.DaysRemaining(date(2026, time.March, 1)))
	assert.Equal(t, int64(16), w.DaysRemaining(date(2026, time.March, 16)))
	assert.Equal(t, int64(0), w.DaysRemaining(date(2026, time.April, 1)))
}

func TestContainsHalfOpen(t *testing.T) {
	w := Window{Start: date(2026, time.March, 1), End: date(2026, time.April, 1)}
	assert.True(t, w.Contains(date(2026, time.March, 1)))
	assert.True(t, w.Contains(date(2026, time.March, 31)))
	assert.False(t, w.Contains(date(2026, time.April, 1)))
}

func TestParseInterval(t *testing.T) {
	_, err := ParseInterval("WEEKLY")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	iv, err := ParseInterval("ANNUAL")
	require.NoError(t, err)
	assert.Equal(t, IntervalAnnual, iv)
}
