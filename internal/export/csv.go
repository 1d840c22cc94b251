package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"subtrack/internal/core"
)

const csvDateLayout = "2006-01-02"

// WriteCategoriesCSV renders a category breakdown as CSV with a header
// row. Rows keep the breakdown's order (largest spend first).
func WriteCategoriesCSV(w io.Writer, breakdown core.CategoryBreakdown) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"category", "monthly_cost", "yearly_cost", "percentage", "subscriptions"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, cat := range breakdown.Categories {
		row := []string{
			cat.Category,
			formatAmount(cat.TotalMonthlyCost),
			formatAmount(cat.TotalYearlyCost),
			formatAmount(cat.Percentage),
			strconv.Itoa(cat.Count),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteProjectionCSV renders the monthly projection, one row per month
// bucket in chronological order.
func WriteProjectionCSV(w io.Writer, projection core.ProjectionResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", "label", "total", "occurrences", "above_average"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, month := range projection.Months {
		row := []string{
			month.MonthKey,
			month.MonthLabel,
			formatAmount(month.TotalAmount),
			strconv.Itoa(len(month.Occurrences)),
			strconv.FormatBool(month.AboveAverage),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTimelineCSV renders the grouped timeline flattened to one row
// per event, newest first, with the group label preserved.
func WriteTimelineCSV(w io.Writer, timeline core.GroupedTimeline) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"group", "date", "subscription", "action", "description"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, group := range timeline.Groups {
		for _, event := range group.Events {
			row := []string{
				group.Label,
				event.Entry.CreatedAt.Format(csvDateLayout),
				event.Entry.SubscriptionName,
				string(event.Entry.Action),
				event.Description,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOccurrencesCSV renders projected billing occurrences, soonest
// first.
func WriteOccurrencesCSV(w io.Writer, occurrences []core.Occurrence) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "subscription_id", "amount", "is_trial"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, occ := range occurrences {
		row := []string{
			occ.Date.Format(csvDateLayout),
			occ.SubscriptionID,
			formatAmount(occ.Amount),
			strconv.FormatBool(occ.IsTrial),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
