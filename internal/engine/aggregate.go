package engine

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"subtrack/internal/core"
)

// Aggregation folds occurrences and normalized costs into the dashboard
// views. Every function here is a pure fold over its inputs: calling it
// twice on the same snapshot with the same "now" yields identical output.
//
// Per-record failures (malformed cost, unrecognized cycle) exclude only
// the offending subscription and are reported as SkippedRecord
// advisories; one bad record must not blank the dashboard.

// CategoryBreakdown groups active, non-trial subscriptions by category
// and computes per-group counts and normalized monthly/yearly totals.
// The grand total equals the sum of all groups, which in turn equals the
// sum of every included subscription's normalized monthly cost.
func CategoryBreakdown(subs []core.Subscription) core.CategoryBreakdown {
	breakdown := core.CategoryBreakdown{Categories: []core.CategoryAggregate{}}

	byCategory := make(map[string]*core.CategoryAggregate)
	for _, sub := range subs {
		if !sub.IsActive || sub.IsTrial {
			continue
		}
		monthly, skip := normalizedMonthly(sub)
		if skip != nil {
			breakdown.Skipped = append(breakdown.Skipped, *skip)
			continue
		}

		category := sub.Category
		if strings.TrimSpace(category) == "" {
			category = "Other"
		}
		agg, ok := byCategory[category]
		if !ok {
			agg = &core.CategoryAggregate{Category: category}
			byCategory[category] = agg
		}
		agg.Count++
		agg.TotalMonthlyCost += monthly
		agg.TotalYearlyCost += monthly * 12
		breakdown.TotalMonthly += monthly
	}
	breakdown.TotalYearly = breakdown.TotalMonthly * 12

	for _, agg := range byCategory {
		if breakdown.TotalMonthly > 0 {
			agg.Percentage = agg.TotalMonthlyCost / breakdown.TotalMonthly * 100
		}
		breakdown.Categories = append(breakdown.Categories, *agg)
	}
	// Largest spend first; name breaks ties so output is reproducible.
	sort.Slice(breakdown.Categories, func(i, j int) bool {
		a, b := breakdown.Categories[i], breakdown.Categories[j]
		if a.TotalMonthlyCost != b.TotalMonthlyCost {
			return a.TotalMonthlyCost > b.TotalMonthlyCost
		}
		return a.Category < b.Category
	})
	return breakdown
}

// MonthlyProjection buckets the occurrences of active, non-trial
// subscriptions by calendar month over the horizon, starting at now's
// month. Every month of the horizon is present, including empty ones.
// A bucket is flagged AboveAverage when its total exceeds the mean of
// all bucket totals.
func MonthlyProjection(subs []core.Subscription, now time.Time, horizonMonths int) core.ProjectionResult {
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}

	result := core.ProjectionResult{Months: make([]core.MonthProjection, horizonMonths)}
	index := make(map[string]int, horizonMonths)
	for i := 0; i < horizonMonths; i++ {
		m := addMonthsClamped(startOfDay(now), i)
		result.Months[i] = core.MonthProjection{
			MonthKey:    monthKey(m),
			MonthLabel:  monthLabel(m),
			Occurrences: []core.Occurrence{},
		}
		index[monthKey(m)] = i
	}

	for _, sub := range subs {
		if !sub.IsActive || sub.IsTrial {
			continue
		}
		if _, skip := normalizedMonthly(sub); skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}
		occurrences, err := Generate(sub, now, horizonMonths)
		if err != nil {
			slog.Warn("Excluding subscription from projection",
				"subscription_id", sub.ID,
				"error", err)
			result.Skipped = append(result.Skipped, core.SkippedRecord{
				SubscriptionID: sub.ID,
				Name:           sub.Name,
				Reason:         err.Error(),
			})
			continue
		}
		for _, occ := range occurrences {
			i, ok := index[monthKey(occ.Date)]
			if !ok {
				// An overdue anchor can precede now's month.
				continue
			}
			result.Months[i].Occurrences = append(result.Months[i].Occurrences, occ)
			result.Months[i].TotalAmount += occ.Amount
		}
	}

	var sum float64
	for _, m := range result.Months {
		sum += m.TotalAmount
	}
	mean := sum / float64(len(result.Months))
	for i := range result.Months {
		result.Months[i].AboveAverage = result.Months[i].TotalAmount > mean
	}
	return result
}

// PeakMonths ranks projection buckets by descending total. Ties go to
// the earliest month so the ranking is stable across runs.
func PeakMonths(months []core.MonthProjection) []core.MonthProjection {
	ranked := make([]core.MonthProjection, len(months))
	copy(ranked, months)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalAmount != ranked[j].TotalAmount {
			return ranked[i].TotalAmount > ranked[j].TotalAmount
		}
		return ranked[i].MonthKey < ranked[j].MonthKey
	})
	return ranked
}

// Trends folds the history log into per-month counts of renewals and
// cancellations plus the amounts actually paid. This view is
// backward-looking; it must never be conflated with the forward-looking
// monthly projection.
func Trends(entries []core.HistoryEntry) []core.TrendPoint {
	byMonth := make(map[string]*core.TrendPoint)
	for _, entry := range entries {
		key := monthKey(entry.CreatedAt)
		point, ok := byMonth[key]
		if !ok {
			point = &core.TrendPoint{MonthKey: key, MonthLabel: monthLabel(entry.CreatedAt)}
			byMonth[key] = point
		}
		switch entry.Action {
		case core.ActionRenewal:
			point.Renewals++
		case core.ActionCancel, core.ActionDeleted:
			point.Cancellations++
		case core.ActionPaymentSuccess:
			if amount, ok := parseAmount(entry.NewValue); ok {
				point.AmountPaid += amount
			}
		}
	}

	points := make([]core.TrendPoint, 0, len(byMonth))
	for _, point := range byMonth {
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].MonthKey < points[j].MonthKey })
	return points
}

// normalizedMonthly validates the subscription's cost and cadence and
// returns its monthly-equivalent cost, or a SkippedRecord describing why
// it was excluded.
func normalizedMonthly(sub core.Subscription) (float64, *core.SkippedRecord) {
	if reason := costProblem(sub.Cost); reason != "" {
		return 0, &core.SkippedRecord{SubscriptionID: sub.ID, Name: sub.Name, Reason: reason}
	}
	monthly, err := MonthlyEquivalent(sub.Cost, sub.BillingCycle)
	if err != nil {
		cfgErr := newConfigurationError(sub)
		return 0, &core.SkippedRecord{SubscriptionID: sub.ID, Name: sub.Name, Reason: cfgErr.Error()}
	}
	return monthly, nil
}

// parseAmount reads a decimal amount from a history value, tolerating a
// leading currency symbol. History values are free-form strings, so a
// value that does not parse simply contributes nothing.
func parseAmount(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	s = strings.TrimLeft(s, "$€£")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}
