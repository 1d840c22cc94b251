package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"subtrack/internal/core"
)

// fakeProvider serves a fixed snapshot, standing in for the SQLite
// repository.
type fakeProvider struct {
	subs    []core.Subscription
	history []core.HistoryEntry
}

func (f *fakeProvider) ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	var active []core.Subscription
	for _, sub := range f.subs {
		if sub.IsActive {
			active = append(active, sub)
		}
	}
	return active, nil
}

func (f *fakeProvider) ListAllSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	return f.subs, nil
}

func (f *fakeProvider) ListHistoryEntries(ctx context.Context, subscriptionID string) ([]core.HistoryEntry, error) {
	if subscriptionID == "" {
		return f.history, nil
	}
	var filtered []core.HistoryEntry
	for _, h := range f.history {
		if h.SubscriptionID == subscriptionID {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

func testEngine() (*Engine, time.Time) {
	now := date(2024, time.January, 15)
	provider := &fakeProvider{
		subs: []core.Subscription{
			{
				ID: "s1", Name: "Netflix", Category: "Entertainment", Cost: 15.99,
				BillingCycle: core.Monthly, NextBillingDate: date(2024, time.January, 18),
				IsActive: true,
			},
			{
				ID: "s2", Name: "Notion", Category: "Productivity", Cost: 96,
				BillingCycle: core.Yearly, NextBillingDate: date(2024, time.June, 10),
				IsActive: true,
			},
			{
				ID: "s3", Name: "Old News", Category: "News", Cost: 4.99,
				BillingCycle: core.Monthly, NextBillingDate: date(2024, time.February, 3),
				IsActive: false,
			},
		},
		history: []core.HistoryEntry{
			{ID: 1, SubscriptionID: "s1", SubscriptionName: "Netflix", Action: core.ActionCreated, CreatedAt: date(2023, time.November, 2)},
			{ID: 2, SubscriptionID: "s1", SubscriptionName: "Netflix", Action: core.ActionRenewal, CreatedAt: date(2023, time.December, 18)},
			{ID: 3, SubscriptionID: "s3", SubscriptionName: "Old News", Action: core.ActionCancel, CreatedAt: date(2024, time.January, 2)},
		},
	}
	return New(provider), now
}

func TestEngine_Snapshot(t *testing.T) {
	eng, now := testEngine()
	snap, err := eng.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Subscriptions) != 3 {
		t.Errorf("got %d subscriptions, want 3", len(snap.Subscriptions))
	}
	if len(snap.Active) != 2 {
		t.Errorf("got %d active subscriptions, want 2", len(snap.Active))
	}
	if len(snap.History) != 3 {
		t.Errorf("got %d history entries, want 3", len(snap.History))
	}
	if !snap.TakenAt.Equal(now) {
		t.Errorf("TakenAt = %v, want %v", snap.TakenAt, now)
	}
}

func TestEngine_UpcomingRenewals(t *testing.T) {
	eng, now := testEngine()
	snap, err := eng.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	upcoming := eng.UpcomingRenewals(snap, now, 7)
	if len(upcoming) != 1 {
		t.Fatalf("got %d upcoming renewals, want 1: %v", len(upcoming), upcoming)
	}
	if upcoming[0].SubscriptionID != "s1" {
		t.Errorf("upcoming[0].SubscriptionID = %q, want s1", upcoming[0].SubscriptionID)
	}
}

func TestEngine_CalendarOccurrencesIncludesInactiveAnchor(t *testing.T) {
	eng, now := testEngine()
	snap, err := eng.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	occurrences, skipped := eng.CalendarOccurrences(snap, now, 3)
	if len(skipped) != 0 {
		t.Fatalf("got %d skipped records, want 0", len(skipped))
	}

	var inactiveShown bool
	for _, occ := range occurrences {
		if occ.SubscriptionID == "s3" {
			inactiveShown = true
			if !occ.Date.Equal(date(2024, time.February, 3)) {
				t.Errorf("inactive anchor date = %v, want 2024-02-03", occ.Date)
			}
		}
	}
	if !inactiveShown {
		t.Errorf("calendar view omitted the inactive subscription's stored anchor")
	}

	for i := 1; i < len(occurrences); i++ {
		if occurrences[i].Date.Before(occurrences[i-1].Date) {
			t.Errorf("occurrences not sorted by date at %d", i)
		}
	}
}

func TestEngine_BuildDashboard(t *testing.T) {
	eng, now := testEngine()
	snap, err := eng.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	dash, err := eng.BuildDashboard(context.Background(), snap, now, 12, 7)
	if err != nil {
		t.Fatalf("BuildDashboard() error = %v", err)
	}

	// Closure invariant: the breakdown's grand total equals the sum of
	// active subscriptions' normalized monthly costs.
	want := 15.99 + 96.0/12
	if math.Abs(dash.Categories.TotalMonthly-want) > 1e-6 {
		t.Errorf("TotalMonthly = %v, want %v", dash.Categories.TotalMonthly, want)
	}
	if len(dash.Projection.Months) != 12 {
		t.Errorf("projection has %d months, want 12", len(dash.Projection.Months))
	}
	if len(dash.PeakMonths) != 12 {
		t.Errorf("peak ranking has %d months, want 12", len(dash.PeakMonths))
	}
	if len(dash.Trends) != 3 {
		t.Errorf("got %d trend points, want 3", len(dash.Trends))
	}
	if dash.Timeline.TotalEvents != 3 {
		t.Errorf("timeline has %d events, want 3", dash.Timeline.TotalEvents)
	}
	if !dash.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v", dash.GeneratedAt, now)
	}
}
