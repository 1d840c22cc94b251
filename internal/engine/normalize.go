package engine

import (
	"math"

	"subtrack/internal/core"
)

// WeeksPerMonth converts a weekly cost into a monthly-equivalent figure.
//
// The exact average is 365.25/12/7 ≈ 4.348. The analytics historically
// used 4.33 and every stored report and test fixture was produced with
// it, so the approximation is kept deliberately rather than silently
// corrected.
const WeeksPerMonth = 4.33

// MonthlyEquivalent converts a cost with the given cadence into a
// monthly-equivalent amount, enabling cross-cadence comparison.
func MonthlyEquivalent(cost float64, cycle core.BillingCycle) (float64, error) {
	switch cycle {
	case core.Monthly:
		return cost, nil
	case core.Yearly:
		return cost / 12, nil
	case core.Quarterly:
		return cost / 3, nil
	case core.Weekly:
		return cost * WeeksPerMonth, nil
	}
	return 0, ErrUnknownCycle
}

// YearlyEquivalent is the monthly equivalent scaled to a full year.
func YearlyEquivalent(cost float64, cycle core.BillingCycle) (float64, error) {
	monthly, err := MonthlyEquivalent(cost, cycle)
	if err != nil {
		return 0, err
	}
	return monthly * 12, nil
}

// costProblem classifies a malformed cost. An empty string means the cost
// is usable. Malformed costs are excluded record-by-record and surfaced
// as SkippedRecord advisories instead of aborting the computation.
func costProblem(cost float64) string {
	switch {
	case math.IsNaN(cost):
		return "cost is not a number"
	case math.IsInf(cost, 0):
		return "cost is not finite"
	case cost < 0:
		return "cost is negative"
	}
	return ""
}
