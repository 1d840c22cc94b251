package engine

import (
	"time"

	"subtrack/internal/core"
)

// DefaultHorizonMonths is the forward window occurrences are generated
// over when the caller does not specify one.
const DefaultHorizonMonths = 12

// Generate expands one subscription into its predicted billing
// occurrences between its anchor date and now + horizonMonths.
//
// The stored anchor is already the first future occurrence as of snapshot
// time, so expansion starts there. An overdue anchor (in the past
// relative to now) still counts exactly once; the generator never
// back-fills one occurrence per missed period, which would produce a
// pathological backlog for records that sat untouched for a long time.
//
// Inactive subscriptions yield no occurrences. For a trial subscription
// the anchor is the trial-end date, not a billing cadence: it yields at
// most that single IsTrial-flagged marker and is never expanded into a
// recurring series.
func Generate(sub core.Subscription, now time.Time, horizonMonths int) ([]core.Occurrence, error) {
	if !sub.IsActive {
		return nil, nil
	}
	if !core.ValidCycle(sub.BillingCycle) {
		return nil, newConfigurationError(sub)
	}
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}

	end := now.AddDate(0, horizonMonths, 0)
	if sub.NextBillingDate.After(end) {
		return nil, nil
	}

	if sub.IsTrial {
		return []core.Occurrence{{
			SubscriptionID: sub.ID,
			Date:           sub.NextBillingDate,
			Amount:         sub.Cost,
			IsTrial:        true,
		}}, nil
	}

	var occurrences []core.Occurrence
	for n := 0; ; n++ {
		date, err := OccurrenceAt(sub.NextBillingDate, sub.BillingCycle, n)
		if err != nil {
			return nil, newConfigurationError(sub)
		}
		if date.After(end) {
			break
		}
		// The anchor itself counts even when overdue; later steps that
		// still land in the past are the catch-up backlog and are
		// skipped.
		if n > 0 && date.Before(now) {
			continue
		}
		occurrences = append(occurrences, core.Occurrence{
			SubscriptionID: sub.ID,
			Date:           date,
			Amount:         sub.Cost,
			IsTrial:        sub.IsTrial,
		})
	}
	return occurrences, nil
}

// InformationalOccurrence returns the single stored anchor of a
// subscription as a display-only occurrence. It is the calendar-view
// request mode for inactive records and performs no expansion.
func InformationalOccurrence(sub core.Subscription) core.Occurrence {
	return core.Occurrence{
		SubscriptionID: sub.ID,
		Date:           sub.NextBillingDate,
		Amount:         sub.Cost,
		IsTrial:        sub.IsTrial,
	}
}
