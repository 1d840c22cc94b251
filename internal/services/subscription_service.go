package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"subtrack/internal/core"
)

// SubscriptionStore is the persistence surface the service writes
// through. *storage.SQLiteRepository satisfies it.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id string) (core.Subscription, error)
	InsertSubscription(ctx context.Context, sub core.Subscription) error
	UpdateSubscription(ctx context.Context, sub core.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	AppendHistory(ctx context.Context, entry core.HistoryEntry) (int64, error)
	SnapshotVersion(ctx context.Context) (string, error)
	Close() error
}

// InvalidationPublisher announces store mutations. *amqp.Client
// satisfies it.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, subscriptionID, action, version string) error
	Close() error
}

// SubscriptionService orchestrates writes: every mutation lands in
// SQLite first, then appends a history entry, then announces the change
// over AMQP. Publishing failures never fail the request; the database
// is the source of truth and caches recover via TTL.
type SubscriptionService struct {
	store     SubscriptionStore
	publisher InvalidationPublisher
}

func NewSubscriptionService(store SubscriptionStore, publisher InvalidationPublisher) *SubscriptionService {
	return &SubscriptionService{store: store, publisher: publisher}
}

// CreateSubscription persists a new subscription and logs its creation.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, sub core.Subscription, now time.Time) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	s.appendHistory(ctx, core.HistoryEntry{
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Action:           core.ActionCreated,
		NewValue:         formatCost(sub.Cost),
		CreatedAt:        now,
	})
	s.publish(ctx, sub.ID, string(core.ActionCreated))
	return nil
}

// UpdateSubscription overwrites a subscription and logs what changed. A
// cost change is logged as its own action with old and new values so
// trend analysis can pick it up.
func (s *SubscriptionService) UpdateSubscription(ctx context.Context, sub core.Subscription, now time.Time) error {
	previous, err := s.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("load previous subscription: %w", err)
	}
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	action := core.ActionUpdated
	oldValue, newValue := "", ""
	if previous.Cost != sub.Cost {
		action = core.ActionCostChanged
		oldValue = formatCost(previous.Cost)
		newValue = formatCost(sub.Cost)
	}
	s.appendHistory(ctx, core.HistoryEntry{
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Action:           action,
		OldValue:         oldValue,
		NewValue:         newValue,
		CreatedAt:        now,
	})
	s.publish(ctx, sub.ID, string(action))
	return nil
}

// DeleteSubscription removes the record. Its history entries stay
// behind, plus one final deletion entry.
func (s *SubscriptionService) DeleteSubscription(ctx context.Context, id string, now time.Time) error {
	previous, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	s.appendHistory(ctx, core.HistoryEntry{
		SubscriptionID:   id,
		SubscriptionName: previous.Name,
		Action:           core.ActionDeleted,
		CreatedAt:        now,
	})
	s.publish(ctx, id, string(core.ActionDeleted))
	return nil
}

// RecordAction appends an arbitrary lifecycle event (renewal, payment,
// pause) to a subscription's history.
func (s *SubscriptionService) RecordAction(ctx context.Context, entry core.HistoryEntry) error {
	if entry.SubscriptionName == "" {
		sub, err := s.store.GetSubscription(ctx, entry.SubscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		entry.SubscriptionName = sub.Name
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, err := s.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	s.publish(ctx, entry.SubscriptionID, string(entry.Action))
	return nil
}

func (s *SubscriptionService) appendHistory(ctx context.Context, entry core.HistoryEntry) {
	if _, err := s.store.AppendHistory(ctx, entry); err != nil {
		// The primary write already succeeded; a missing history row is
		// a logged degradation, not a request failure.
		slog.ErrorContext(ctx, "Failed to append history entry",
			"subscription_id", entry.SubscriptionID,
			"action", entry.Action,
			"error", err)
	}
}

func (s *SubscriptionService) publish(ctx context.Context, subscriptionID, action string) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping invalidation message")
		return
	}
	version, err := s.store.SnapshotVersion(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read snapshot version", "error", err)
		version = ""
	}
	if err := s.publisher.PublishInvalidation(ctx, subscriptionID, action, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish invalidation message",
			"subscription_id", subscriptionID,
			"action", action,
			"error", err)
	}
}

// Close closes both the store and the publisher.
func (s *SubscriptionService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close subscription service: %v", errs)
	}
	return nil
}

func formatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', 2, 64)
}
