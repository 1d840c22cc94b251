package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/core"
	"subtrack/internal/engine"
)

type fakeProvider struct {
	subs    []core.Subscription
	history []core.HistoryEntry
	err     error
}

func (f *fakeProvider) ListAllSubscriptions(context.Context) ([]core.Subscription, error) {
	return f.subs, f.err
}

func (f *fakeProvider) ListActiveSubscriptions(context.Context) ([]core.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var active []core.Subscription
	for _, sub := range f.subs {
		if sub.IsActive {
			active = append(active, sub)
		}
	}
	return active, nil
}

func (f *fakeProvider) ListHistoryEntries(context.Context, string) ([]core.HistoryEntry, error) {
	return f.history, f.err
}

type fakeExporter struct {
	exports int
	err     error
}

func (f *fakeExporter) ExportDashboard(context.Context, *engine.Dashboard) error {
	f.exports++
	return f.err
}

func testProvider() *fakeProvider {
	return &fakeProvider{
		subs: []core.Subscription{
			{
				ID: "s1", Name: "Netflix", Category: "Entertainment", Cost: 15.99,
				BillingCycle: core.Monthly, NextBillingDate: time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC),
				IsActive: true,
			},
		},
		history: []core.HistoryEntry{
			{ID: 1, SubscriptionID: "s1", SubscriptionName: "Netflix", Action: core.ActionCreated,
				CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestRefreshUpdatesLatest(t *testing.T) {
	w := NewRefreshWorker(engine.New(testProvider()), nil, 12, 7)
	w.clock = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }

	if w.Latest() != nil {
		t.Fatal("Latest should be nil before first refresh")
	}
	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	dash := w.Latest()
	if dash == nil {
		t.Fatal("Latest should be set after refresh")
	}
	if len(dash.Projection.Months) != 12 {
		t.Errorf("projection months = %d, want 12", len(dash.Projection.Months))
	}
	if len(dash.Upcoming) != 1 {
		t.Errorf("upcoming = %d, want 1", len(dash.Upcoming))
	}
}

func TestRefreshExports(t *testing.T) {
	exporter := &fakeExporter{}
	w := NewRefreshWorker(engine.New(testProvider()), exporter, 12, 7)

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if exporter.exports != 1 {
		t.Errorf("exports = %d, want 1", exporter.exports)
	}
}

func TestRefreshExportFailureIsNotFatal(t *testing.T) {
	exporter := &fakeExporter{err: errors.New("sheets down")}
	w := NewRefreshWorker(engine.New(testProvider()), exporter, 12, 7)

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() should not fail on export error, got %v", err)
	}
	if w.Latest() == nil {
		t.Error("Latest should still be updated when export fails")
	}
}

func TestRefreshSnapshotFailure(t *testing.T) {
	provider := testProvider()
	provider.err = errors.New("db closed")
	w := NewRefreshWorker(engine.New(provider), nil, 12, 7)

	if err := w.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should fail when the snapshot fails")
	}
	if w.Latest() != nil {
		t.Error("Latest should stay nil after failed refresh")
	}
}

func TestHandleInvalidationRefreshes(t *testing.T) {
	w := NewRefreshWorker(engine.New(testProvider()), nil, 12, 7)

	msg := amqp.NewInvalidationMessage("s1", "updated", "v2")
	if err := w.HandleInvalidation(context.Background(), msg); err != nil {
		t.Fatalf("HandleInvalidation() error = %v", err)
	}
	if w.Latest() == nil {
		t.Error("Latest should be set after invalidation")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w := NewRefreshWorker(engine.New(testProvider()), nil, 12, 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 50*time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if w.Latest() == nil {
		t.Error("Run should perform an initial refresh")
	}
}

func TestNewRefreshWorkerDefaults(t *testing.T) {
	w := NewRefreshWorker(engine.New(testProvider()), nil, 0, 0)
	if w.horizonMonths != engine.DefaultHorizonMonths {
		t.Errorf("horizonMonths = %d, want %d", w.horizonMonths, engine.DefaultHorizonMonths)
	}
	if w.windowDays != engine.DefaultUpcomingWindowDays {
		t.Errorf("windowDays = %d, want %d", w.windowDays, engine.DefaultUpcomingWindowDays)
	}
}
