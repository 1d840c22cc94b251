package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"subtrack/internal/core"
)

// BuildTimeline filters the history log, renders each surviving entry to
// a human description, groups entries into relative-date buckets and
// computes analytics over the same filtered set.
//
// Filters compose with AND semantics; removing any one filter can only
// grow the result set. History entries are never edited, only reordered
// and grouped.
func BuildTimeline(entries []core.HistoryEntry, filter core.TimelineFilter, now time.Time) core.GroupedTimeline {
	filtered := filterEntries(entries, filter, now)

	// Newest first within and across buckets.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	timeline := core.GroupedTimeline{
		Groups:      []core.TimelineGroup{},
		TotalEvents: len(filtered),
	}
	groupIndex := make(map[string]int)
	for _, entry := range filtered {
		label := bucketLabel(entry.CreatedAt, now)
		i, ok := groupIndex[label]
		if !ok {
			timeline.Groups = append(timeline.Groups, core.TimelineGroup{Label: label})
			i = len(timeline.Groups) - 1
			groupIndex[label] = i
		}
		timeline.Groups[i].Events = append(timeline.Groups[i].Events, core.TimelineEvent{
			Entry:       entry,
			Description: Describe(entry),
		})
	}

	timeline.Stats = timelineStats(filtered, now)
	return timeline
}

func filterEntries(entries []core.HistoryEntry, filter core.TimelineFilter, now time.Time) []core.HistoryEntry {
	term := strings.ToLower(strings.TrimSpace(filter.SearchTerm))
	var filtered []core.HistoryEntry
	for _, entry := range entries {
		if term != "" &&
			!strings.Contains(strings.ToLower(entry.SubscriptionName), term) &&
			!strings.Contains(strings.ToLower(string(entry.Action)), term) {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !inRange(entry.CreatedAt, filter.TimeRange, now) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

// inRange applies the inclusive time-range predicate. An unknown range
// value behaves like "all" rather than silently dropping everything.
func inRange(createdAt time.Time, r core.TimeRange, now time.Time) bool {
	switch r {
	case core.RangeToday:
		return sameDay(createdAt, now)
	case core.RangeThisWeek:
		return !createdAt.Before(startOfDay(now).AddDate(0, 0, -6)) && !createdAt.After(now)
	case core.RangeThisMonth:
		return sameMonth(createdAt, now)
	}
	return true
}

// bucketLabel computes the relative-date grouping key for an entry.
// Anything older than the current month falls back to the literal
// month+year label.
func bucketLabel(createdAt, now time.Time) string {
	switch {
	case sameDay(createdAt, now):
		return "Today"
	case sameDay(createdAt, now.AddDate(0, 0, -1)):
		return "Yesterday"
	case !createdAt.Before(startOfDay(now).AddDate(0, 0, -6)) && createdAt.Before(now):
		return "This Week"
	case sameMonth(createdAt, now):
		return "This Month"
	}
	return monthLabel(createdAt)
}

// Describe renders one history entry via the action template table.
// Unknown actions and missing values degrade to generic renderings; the
// action set is open and rendering must never fail.
func Describe(entry core.HistoryEntry) string {
	name := entry.SubscriptionName
	oldVal := strings.TrimSpace(entry.OldValue)
	newVal := strings.TrimSpace(entry.NewValue)

	switch entry.Action {
	case core.ActionCreated:
		return fmt.Sprintf("Created subscription %q", name)
	case core.ActionUpdated:
		if oldVal != "" && newVal != "" {
			return fmt.Sprintf("Updated %q from %q to %q", name, oldVal, newVal)
		}
		return fmt.Sprintf("Updated subscription %q", name)
	case core.ActionDeleted:
		return fmt.Sprintf("Deleted subscription %q", name)
	case core.ActionPaymentSuccess:
		if newVal != "" {
			return fmt.Sprintf("Payment of %s succeeded for %q", newVal, name)
		}
		return fmt.Sprintf("Payment succeeded for %q", name)
	case core.ActionPaymentFailed:
		if newVal != "" {
			return fmt.Sprintf("Payment of %s failed for %q", newVal, name)
		}
		return fmt.Sprintf("Payment failed for %q", name)
	case core.ActionCostChanged:
		if oldVal != "" && newVal != "" {
			return fmt.Sprintf("Changed cost of %q from %s to %s", name, oldVal, newVal)
		}
		return fmt.Sprintf("Changed cost of %q", name)
	case core.ActionRenewal:
		return fmt.Sprintf("Renewed %q", name)
	case core.ActionPause:
		return fmt.Sprintf("Paused %q", name)
	case core.ActionResume:
		return fmt.Sprintf("Resumed %q", name)
	case core.ActionCancel:
		return fmt.Sprintf("Cancelled %q", name)
	case core.ActionRefund:
		if newVal != "" {
			return fmt.Sprintf("Refunded %s for %q", newVal, name)
		}
		return fmt.Sprintf("Refunded %q", name)
	case core.ActionTrialStart:
		return fmt.Sprintf("Started trial for %q", name)
	case core.ActionTrialEnd:
		return fmt.Sprintf("Trial ended for %q", name)
	}
	return fmt.Sprintf("%s on subscription %q", entry.Action, name)
}

// timelineStats computes per-action counts, the five most active
// subscriptions and a rolling 30-day event count over the filtered set.
func timelineStats(filtered []core.HistoryEntry, now time.Time) core.TimelineStats {
	stats := core.TimelineStats{
		ActionCounts: []core.ActionCount{},
		MostActive:   []core.SubscriptionActivity{},
	}

	actionCounts := make(map[core.Action]int)
	nameCounts := make(map[string]int)
	cutoff := now.AddDate(0, 0, -30)
	for _, entry := range filtered {
		actionCounts[entry.Action]++
		nameCounts[entry.SubscriptionName]++
		if entry.CreatedAt.After(cutoff) {
			stats.EventsLast30Days++
		}
	}

	for action, count := range actionCounts {
		stats.ActionCounts = append(stats.ActionCounts, core.ActionCount{Action: action, Count: count})
	}
	sort.Slice(stats.ActionCounts, func(i, j int) bool {
		a, b := stats.ActionCounts[i], stats.ActionCounts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Action < b.Action
	})

	for name, count := range nameCounts {
		stats.MostActive = append(stats.MostActive, core.SubscriptionActivity{Name: name, Count: count})
	}
	sort.Slice(stats.MostActive, func(i, j int) bool {
		a, b := stats.MostActive[i], stats.MostActive[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	if len(stats.MostActive) > 5 {
		stats.MostActive = stats.MostActive[:5]
	}

	return stats
}
