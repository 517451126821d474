// Package cycle derives billing cycle windows from a subscription's anchor
// date and interval. Cycles are half-open [start, end) in UTC and are never
// persisted; usage counters and recurring charges key off the cycle ID.
package cycle

import (
	"errors"
	"fmt"
	"time"
)

// Interval is the recurrence of a subscription's billing cycle.
type Interval string

const (
	IntervalMonthly Interval = "MONTHLY"
	IntervalAnnual  Interval = "ANNUAL"
)

var ErrInvalidInterval = errors.New("invalid_interval")

// ParseInterval validates a raw interval string.
func ParseInterval(value string) (Interval, error) {
	switch Interval(value) {
	case IntervalMonthly, IntervalAnnual:
		return Interval(value), nil
	default:
		return "", ErrInvalidInterval
	}
}

// Window is one billing cycle.
type Window struct {
	Start time.Time
	End   time.Time
}

// ID returns the deterministic key for the cycle, e.g. "2026-08" for a
// monthly cycle or "2026" for an annual one anchored in 2026.
func (w Window) ID(interval Interval) string {
	if interval == IntervalAnnual {
		return w.Start.UTC().Format("2006")
	}
	return w.Start.UTC().Format("2006-01")
}

// Days returns the number of whole days in the window.
func (w Window) Days() int64 {
	return int64(w.End.Sub(w.Start).Hours() / 24)
}

// DaysRemaining returns whole days from at (truncated to day) until the end
// of the window, clamped to [0, Days].
func (w Window) DaysRemaining(at time.Time) int64 {
	at = at.UTC().Truncate(24 * time.Hour)
	if !at.Before(w.End) {
		return 0
	}
	if at.Before(w.Start) {
		return w.Days()
	}
	return int64(w.End.Sub(at).Hours() / 24)
}

// Contains reports whether at falls inside the half-open window.
func (w Window) Contains(at time.Time) bool {
	at = at.UTC()
	return !at.Before(w.Start) && at.Before(w.End)
}

// At computes the cycle containing the given instant for a subscription
// anchored at anchor. The anchor day-of-month carries through; anchors on
// the 29th-31st clamp to the last day of shorter months.
func At(anchor time.Time, interval Interval, at time.Time) (Window, error) {
	anchor = anchor.UTC()
	at = at.UTC()
	if at.Before(anchor) {
		at = anchor
	}

	switch interval {
	case IntervalMonthly:
		start := monthlyStart(anchor, at)
		return Window{Start: start, End: addMonthsClamped(start, anchor.Day(), 1)}, nil
	case IntervalAnnual:
		start := annualStart(anchor, at)
		return Window{Start: start, End: start.AddDate(1, 0, 0)}, nil
	default:
		return Window{}, ErrInvalidInterval
	}
}

// IDAt is a convenience for the cycle ID containing at.
func IDAt(anchor time.Time, interval Interval, at time.Time) (string, error) {
	w, err := At(anchor, interval, at)
	if err != nil {
		return "", err
	}
	return w.ID(interval), nil
}

func monthlyStart(anchor, at time.Time) time.Time {
	start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	start = clampDay(start, anchor.Day())
	for {
		next := addMonthsClamped(start, anchor.Day(), 1)
		if at.Before(next) {
			return start
		}
		start = next
	}
}

func annualStart(anchor, at time.Time) time.Time {
	start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	start = clampDay(start, anchor.Day())
	for {
		next := start.AddDate(1, 0, 0)
		if at.Before(next) {
			return start
		}
		start = next
	}
}

func addMonthsClamped(start time.Time, anchorDay, months int) time.Time {
	next := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	return clampDay(next, anchorDay)
}

func clampDay(firstOfMonth time.Time, day int) time.Time {
	last := firstOfMonth.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Key builds the counter key for a (workspace, feature, cycle) triple.
func Key(workspaceID, featureID, cycleID string) string {
	return fmt.Sprintf("%s:%s:%s", workspaceID, featureID, cycleID)
}
