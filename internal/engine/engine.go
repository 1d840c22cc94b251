package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"subtrack/internal/core"
)

// DefaultUpcomingWindowDays is the lookahead for the upcoming-renewals
// view when the caller does not specify one.
const DefaultUpcomingWindowDays = 7

// SnapshotProvider is the read-only boundary to the owning store. A
// provider must return a consistent point-in-time view: Snapshot is the
// only place the engine touches storage, and the provider is expected to
// serve all three lists from one read transaction.
type SnapshotProvider interface {
	ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error)
	ListAllSubscriptions(ctx context.Context) ([]core.Subscription, error)
	// ListHistoryEntries returns the history log, optionally narrowed to
	// one subscription when subscriptionID is non-empty.
	ListHistoryEntries(ctx context.Context, subscriptionID string) ([]core.HistoryEntry, error)
}

// Snapshot is a consistent point-in-time read of the inputs to a single
// engine invocation. All derived views are pure functions of a snapshot
// plus an explicit "now", so they may be computed in parallel without
// synchronization.
type Snapshot struct {
	Subscriptions []core.Subscription
	Active        []core.Subscription
	History       []core.HistoryEntry
	TakenAt       time.Time
}

// Dashboard bundles the independent derived views computed from one
// snapshot.
type Dashboard struct {
	Categories  core.CategoryBreakdown `json:"categories"`
	Projection  core.ProjectionResult  `json:"projection"`
	PeakMonths  []core.MonthProjection `json:"peakMonths"`
	Trends      []core.TrendPoint      `json:"trends"`
	Timeline    core.GroupedTimeline   `json:"timeline"`
	Upcoming    []core.Occurrence      `json:"upcoming"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// Engine is the query facade. It is stateless: every method takes a
// snapshot and an explicit "now" and computes a fresh result.
type Engine struct {
	provider SnapshotProvider
}

func New(provider SnapshotProvider) *Engine {
	return &Engine{provider: provider}
}

// TxSnapshotProvider is implemented by providers that can serve all
// three lists from a single read transaction. The engine prefers it
// when available so a concurrent mutation can never be observed
// half-applied across the lists.
type TxSnapshotProvider interface {
	Snapshot(ctx context.Context) (subs, active []core.Subscription, history []core.HistoryEntry, err error)
}

// Snapshot fetches the engine's inputs once. This is the only I/O the
// engine performs; everything downstream is pure computation.
func (e *Engine) Snapshot(ctx context.Context, now time.Time) (*Snapshot, error) {
	if tp, ok := e.provider.(TxSnapshotProvider); ok {
		subs, active, history, err := tp.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		return &Snapshot{Subscriptions: subs, Active: active, History: history, TakenAt: now}, nil
	}

	subs, err := e.provider.ListAllSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	active, err := e.provider.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	history, err := e.provider.ListHistoryEntries(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	return &Snapshot{
		Subscriptions: subs,
		Active:        active,
		History:       history,
		TakenAt:       now,
	}, nil
}

// CategoryBreakdown groups the snapshot's active, non-trial
// subscriptions by category.
func (e *Engine) CategoryBreakdown(snap *Snapshot) core.CategoryBreakdown {
	return CategoryBreakdown(snap.Active)
}

// MonthlyProjection buckets projected spend by calendar month over the
// horizon.
func (e *Engine) MonthlyProjection(snap *Snapshot, now time.Time, horizonMonths int) core.ProjectionResult {
	return MonthlyProjection(snap.Active, now, horizonMonths)
}

// PeakMonths ranks the projection buckets by descending total.
func (e *Engine) PeakMonths(snap *Snapshot, now time.Time, horizonMonths int) []core.MonthProjection {
	return PeakMonths(MonthlyProjection(snap.Active, now, horizonMonths).Months)
}

// Trends folds the snapshot's history log into backward-looking monthly
// activity.
func (e *Engine) Trends(snap *Snapshot) []core.TrendPoint {
	return Trends(snap.History)
}

// Timeline builds the grouped, filtered event view from the snapshot's
// history log.
func (e *Engine) Timeline(snap *Snapshot, filter core.TimelineFilter, now time.Time) core.GroupedTimeline {
	return BuildTimeline(snap.History, filter, now)
}

// UpcomingRenewals returns the occurrences of active subscriptions that
// fall within the next windowDays, soonest first.
func (e *Engine) UpcomingRenewals(snap *Snapshot, now time.Time, windowDays int) []core.Occurrence {
	if windowDays <= 0 {
		windowDays = DefaultUpcomingWindowDays
	}
	end := startOfDay(now).AddDate(0, 0, windowDays+1)
	horizonMonths := windowDays/28 + 1

	upcoming := []core.Occurrence{}
	for _, sub := range snap.Active {
		occurrences, err := Generate(sub, now, horizonMonths)
		if err != nil {
			slog.Warn("Excluding subscription from upcoming renewals",
				"subscription_id", sub.ID,
				"error", err)
			continue
		}
		for _, occ := range occurrences {
			if occ.Date.Before(end) {
				upcoming = append(upcoming, occ)
			}
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		if !upcoming[i].Date.Equal(upcoming[j].Date) {
			return upcoming[i].Date.Before(upcoming[j].Date)
		}
		return upcoming[i].SubscriptionID < upcoming[j].SubscriptionID
	})
	return upcoming
}

// CalendarOccurrences returns every subscription's occurrences for
// calendar display. Active subscriptions expand over the horizon;
// inactive ones contribute their single stored anchor as an
// informational marker, never a projected charge.
func (e *Engine) CalendarOccurrences(snap *Snapshot, now time.Time, horizonMonths int) ([]core.Occurrence, []core.SkippedRecord) {
	occurrences := []core.Occurrence{}
	var skipped []core.SkippedRecord
	for _, sub := range snap.Subscriptions {
		if !sub.IsActive {
			occurrences = append(occurrences, InformationalOccurrence(sub))
			continue
		}
		expanded, err := Generate(sub, now, horizonMonths)
		if err != nil {
			skipped = append(skipped, core.SkippedRecord{
				SubscriptionID: sub.ID,
				Name:           sub.Name,
				Reason:         err.Error(),
			})
			continue
		}
		occurrences = append(occurrences, expanded...)
	}
	sort.SliceStable(occurrences, func(i, j int) bool {
		if !occurrences[i].Date.Equal(occurrences[j].Date) {
			return occurrences[i].Date.Before(occurrences[j].Date)
		}
		return occurrences[i].SubscriptionID < occurrences[j].SubscriptionID
	})
	return occurrences, skipped
}

// BuildDashboard computes all views over one snapshot. The views are
// independent pure functions, so they run concurrently; the group is
// only a convenience, no view ever blocks on another.
func (e *Engine) BuildDashboard(ctx context.Context, snap *Snapshot, now time.Time, horizonMonths, windowDays int) (*Dashboard, error) {
	dash := &Dashboard{GeneratedAt: now}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		dash.Categories = e.CategoryBreakdown(snap)
		return nil
	})
	g.Go(func() error {
		dash.Projection = e.MonthlyProjection(snap, now, horizonMonths)
		dash.PeakMonths = PeakMonths(dash.Projection.Months)
		return nil
	})
	g.Go(func() error {
		dash.Trends = e.Trends(snap)
		return nil
	})
	g.Go(func() error {
		dash.Timeline = e.Timeline(snap, core.TimelineFilter{}, now)
		return nil
	})
	g.Go(func() error {
		dash.Upcoming = e.UpcomingRenewals(snap, now, windowDays)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}
