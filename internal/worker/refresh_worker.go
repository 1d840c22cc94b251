package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/engine"
)

// DashboardExporter mirrors a computed dashboard to an external sink.
// *export.SheetsExporter satisfies it.
type DashboardExporter interface {
	ExportDashboard(ctx context.Context, dash *engine.Dashboard) error
}

// RefreshWorker keeps a precomputed dashboard warm. It recomputes on
// every invalidation message and on a periodic tick, and optionally
// mirrors each result to an exporter.
type RefreshWorker struct {
	engine        *engine.Engine
	exporter      DashboardExporter
	horizonMonths int
	windowDays    int
	clock         func() time.Time

	mu     sync.RWMutex
	latest *engine.Dashboard
}

func NewRefreshWorker(eng *engine.Engine, exporter DashboardExporter, horizonMonths, windowDays int) *RefreshWorker {
	if horizonMonths <= 0 {
		horizonMonths = engine.DefaultHorizonMonths
	}
	if windowDays <= 0 {
		windowDays = engine.DefaultUpcomingWindowDays
	}
	return &RefreshWorker{
		engine:        eng,
		exporter:      exporter,
		horizonMonths: horizonMonths,
		windowDays:    windowDays,
		clock:         time.Now,
	}
}

// Refresh recomputes the dashboard from a fresh snapshot. Export
// failures are logged, not returned; the local dashboard is already
// updated and the next cycle retries the mirror.
func (w *RefreshWorker) Refresh(ctx context.Context) error {
	now := w.clock()
	snap, err := w.engine.Snapshot(ctx, now)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}
	dash, err := w.engine.BuildDashboard(ctx, snap, now, w.horizonMonths, w.windowDays)
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}

	w.mu.Lock()
	w.latest = dash
	w.mu.Unlock()

	slog.InfoContext(ctx, "Dashboard refreshed",
		"subscriptions", len(snap.Subscriptions),
		"active", len(snap.Active),
		"months", len(dash.Projection.Months))

	if w.exporter != nil {
		if err := w.exporter.ExportDashboard(ctx, dash); err != nil {
			slog.ErrorContext(ctx, "Dashboard export failed", "error", err)
		}
	}
	return nil
}

// Latest returns the most recently computed dashboard, or nil before
// the first refresh.
func (w *RefreshWorker) Latest() *engine.Dashboard {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// HandleInvalidation reacts to a store-change message by recomputing.
func (w *RefreshWorker) HandleInvalidation(ctx context.Context, msg *amqp.InvalidationMessage) error {
	slog.InfoContext(ctx, "Processing invalidation message",
		"subscription_id", msg.SubscriptionID,
		"action", msg.Action,
		"version", msg.Version)
	return w.Refresh(ctx)
}

// Run refreshes immediately, then on every tick, until ctx is
// cancelled.
func (w *RefreshWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.Refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial dashboard refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic dashboard refresh failed", "error", err)
			}
		}
	}
}
