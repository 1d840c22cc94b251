package engine

import (
	"time"

	"subtrack/internal/core"
)

// Calendar arithmetic for billing cadences.
//
// Month-based steps are always derived from the original anchor date, not
// from the previously generated occurrence. A Jan-31 anchor therefore
// yields Feb-28 (or Feb-29) and then Mar-31: the February clamp never
// propagates into March.

// OccurrenceAt returns the date of the n-th occurrence after the anchor
// (n = 0 is the anchor itself). The anchor's time-of-day and location are
// preserved.
func OccurrenceAt(anchor time.Time, cycle core.BillingCycle, n int) (time.Time, error) {
	if n == 0 {
		return anchor, nil
	}
	if cycle == core.Weekly {
		return anchor.AddDate(0, 0, 7*n), nil
	}
	months, ok := core.CycleMonths(cycle)
	if !ok {
		return time.Time{}, ErrUnknownCycle
	}
	return addMonthsClamped(anchor, months*n), nil
}

// NextAfter returns the occurrence one cycle step after date, clamping
// month-based steps to the last valid day of the target month.
func NextAfter(date time.Time, cycle core.BillingCycle) (time.Time, error) {
	return OccurrenceAt(date, cycle, 1)
}

// addMonthsClamped adds calendar months to t, clamping the day-of-month
// to the last valid day of the target month. time.AddDate is unsuitable
// here because it normalizes Feb-31 forward into March instead of
// clamping.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)
	if total < 0 {
		// Go's integer division truncates toward zero; steps backwards
		// need the floor instead.
		targetYear = year + (total-11)/12
		targetMonth = time.Month((total%12+12)%12 + 1)
	}
	if last := lastDayOfMonth(targetYear, targetMonth); day > last {
		day = last
	}
	h, m, s := t.Clock()
	return time.Date(targetYear, targetMonth, day, h, m, s, t.Nanosecond(), t.Location())
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// monthKey formats a date as the canonical year+month bucket key.
func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

// monthLabel formats a date as the human-readable month bucket label.
func monthLabel(t time.Time) string {
	return t.Format("January 2006")
}

// sameDay reports whether a and b fall on the same calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// sameMonth reports whether a and b fall in the same calendar month.
func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
