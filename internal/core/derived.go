package core

import "time"

// Derived structures are built fresh on every query and discarded after
// the response is produced. None of them hold a reference back to storage.

// Occurrence is one predicted billing event within the projection horizon.
type Occurrence struct {
	SubscriptionID string    `json:"subscriptionId"`
	Date           time.Time `json:"date"`
	Amount         float64   `json:"amount"`
	IsTrial        bool      `json:"isTrial"`
}

// CategoryAggregate is one row of the category breakdown.
type CategoryAggregate struct {
	Category         string  `json:"category"`
	Count            int     `json:"count"`
	TotalMonthlyCost float64 `json:"totalMonthlyCost"`
	TotalYearlyCost  float64 `json:"totalYearlyCost"`
	Percentage       float64 `json:"percentage"`
}

// CategoryBreakdown is the full per-category view plus its grand totals.
// TotalMonthly equals the sum of every row's TotalMonthlyCost.
type CategoryBreakdown struct {
	Categories   []CategoryAggregate `json:"categories"`
	TotalMonthly float64             `json:"totalMonthly"`
	TotalYearly  float64             `json:"totalYearly"`
	Skipped      []SkippedRecord     `json:"skipped,omitempty"`
}

// MonthProjection is one calendar-month bucket of projected spend.
type MonthProjection struct {
	MonthKey     string       `json:"monthKey"`  // "2006-01"
	MonthLabel   string       `json:"monthLabel"` // "January 2006"
	TotalAmount  float64      `json:"totalAmount"`
	Occurrences  []Occurrence `json:"occurrences"`
	AboveAverage bool         `json:"aboveAverage"`
}

// ProjectionResult is the forward-looking monthly projection over the
// horizon, in chronological order, plus any skipped-record advisories.
type ProjectionResult struct {
	Months  []MonthProjection `json:"months"`
	Skipped []SkippedRecord   `json:"skipped,omitempty"`
}

// TrendPoint is one calendar-month bucket of actual historical activity,
// folded from the history log. It characterizes what happened, not what
// is projected to happen.
type TrendPoint struct {
	MonthKey      string  `json:"monthKey"`
	MonthLabel    string  `json:"monthLabel"`
	Renewals      int     `json:"renewals"`
	Cancellations int     `json:"cancellations"`
	AmountPaid    float64 `json:"amountPaid"`
}

// SkippedRecord is a non-fatal advisory attached to results when a record
// was excluded from a computation. It is metadata, never an error.
type SkippedRecord struct {
	SubscriptionID string `json:"subscriptionId"`
	Name           string `json:"name"`
	Reason         string `json:"reason"`
}

// TimeRange selects an inclusive date window relative to "now".
type TimeRange string

const (
	RangeToday     TimeRange = "today"
	RangeThisWeek  TimeRange = "thisWeek"
	RangeThisMonth TimeRange = "thisMonth"
	RangeAll       TimeRange = "all"
)

// TimelineFilter narrows the history entries a timeline is built from.
// All fields are optional and compose with AND semantics.
type TimelineFilter struct {
	SearchTerm string    `json:"searchTerm,omitempty"`
	Action     Action    `json:"action,omitempty"`
	TimeRange  TimeRange `json:"timeRange,omitempty"`
}

// TimelineEvent is one rendered history entry.
type TimelineEvent struct {
	Entry       HistoryEntry `json:"entry"`
	Description string       `json:"description"`
}

// TimelineGroup is a relative-date bucket of events, newest first.
type TimelineGroup struct {
	Label  string          `json:"label"`
	Events []TimelineEvent `json:"events"`
}

// ActionCount is one per-action tally of the filtered set.
type ActionCount struct {
	Action Action `json:"action"`
	Count  int    `json:"count"`
}

// SubscriptionActivity ranks a subscription by event count.
type SubscriptionActivity struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TimelineStats are analytics over the filtered entry set.
type TimelineStats struct {
	ActionCounts     []ActionCount          `json:"actionCounts"`
	MostActive       []SubscriptionActivity `json:"mostActive"`
	EventsLast30Days int                    `json:"eventsLast30Days"`
}

// GroupedTimeline is the complete timeline view: buckets sorted most
// recent first plus analytics over the same filtered set.
type GroupedTimeline struct {
	Groups      []TimelineGroup `json:"groups"`
	TotalEvents int             `json:"totalEvents"`
	Stats       TimelineStats   `json:"stats"`
}
