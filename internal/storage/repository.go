package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"subtrack/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteRepository persists subscriptions and the append-only history
// log, and serves them back as consistent snapshots. It implements
// engine.SnapshotProvider.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListActiveSubscriptions returns only subscriptions eligible for
// forward projection.
func (r *SQLiteRepository) ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	return r.listSubscriptions(ctx, r.db, true)
}

// ListAllSubscriptions returns every subscription, including inactive
// ones retained for history and calendar display.
func (r *SQLiteRepository) ListAllSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	return r.listSubscriptions(ctx, r.db, false)
}

// querier is satisfied by both *sql.DB and *sql.Tx so snapshot reads can
// run inside one transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) listSubscriptions(ctx context.Context, q querier, activeOnly bool) ([]core.Subscription, error) {
	query := `SELECT id, name, category, cost, billing_cycle, next_billing_date,
		is_active, is_trial, trial_days, created_at
		FROM subscriptions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []core.Subscription
	for rows.Next() {
		var (
			sub         core.Subscription
			cycle       string
			billingDate string
			isActive    int64
			isTrial     int64
		)
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Category, &sub.Cost, &cycle,
			&billingDate, &isActive, &isTrial, &sub.TrialDays, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.BillingCycle = core.BillingCycle(cycle)
		sub.IsActive = isActive != 0
		sub.IsTrial = isTrial != 0
		// The anchor is stored as a plain date; a row with a mangled
		// date is surfaced with a zero anchor rather than aborting the
		// whole snapshot.
		if parsed, err := time.Parse(dateLayout, billingDate); err == nil {
			sub.NextBillingDate = parsed
		} else {
			slog.WarnContext(ctx, "Subscription has malformed billing date",
				"subscription_id", sub.ID,
				"next_billing_date", billingDate)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListHistoryEntries returns the history log, newest first, optionally
// narrowed to one subscription.
func (r *SQLiteRepository) ListHistoryEntries(ctx context.Context, subscriptionID string) ([]core.HistoryEntry, error) {
	return r.listHistory(ctx, r.db, subscriptionID)
}

func (r *SQLiteRepository) listHistory(ctx context.Context, q querier, subscriptionID string) ([]core.HistoryEntry, error) {
	query := `SELECT id, subscription_id, subscription_name, action, old_value, new_value, created_at
		FROM subscription_history`
	var args []any
	if subscriptionID != "" {
		query += ` WHERE subscription_id = ?`
		args = append(args, subscriptionID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var (
			entry  core.HistoryEntry
			action string
		)
		if err := rows.Scan(&entry.ID, &entry.SubscriptionID, &entry.SubscriptionName,
			&action, &entry.OldValue, &entry.NewValue, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Action = core.Action(action)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Snapshot reads subscriptions and history inside one read transaction
// so a concurrent create/update/delete can never be observed
// half-applied.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (subs []core.Subscription, active []core.Subscription, history []core.HistoryEntry, err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if subs, err = r.listSubscriptions(ctx, tx, false); err != nil {
		return nil, nil, nil, err
	}
	for _, sub := range subs {
		if sub.IsActive {
			active = append(active, sub)
		}
	}
	if history, err = r.listHistory(ctx, tx, ""); err != nil {
		return nil, nil, nil, err
	}
	return subs, active, history, tx.Commit()
}

// SnapshotVersion derives a cheap version token for the current store
// contents. It changes on any subscription or history mutation and is
// used to key cached derived results.
func (r *SQLiteRepository) SnapshotVersion(ctx context.Context) (string, error) {
	var (
		subCount     int64
		historyCount int64
		maxHistoryID sql.NullInt64
		lastChange   sql.NullString
	)
	row := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM subscriptions),
		(SELECT COUNT(*) FROM subscription_history),
		(SELECT MAX(id) FROM subscription_history),
		(SELECT MAX(created_at) FROM subscription_history)`)
	if err := row.Scan(&subCount, &historyCount, &maxHistoryID, &lastChange); err != nil {
		return "", fmt.Errorf("read snapshot version: %w", err)
	}
	return fmt.Sprintf("v%d.%d.%d.%s", subCount, historyCount, maxHistoryID.Int64, lastChange.String), nil
}

// GetSubscription returns one subscription by id, or sql.ErrNoRows
// wrapped when it does not exist.
func (r *SQLiteRepository) GetSubscription(ctx context.Context, id string) (core.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, category, cost, billing_cycle, next_billing_date,
		is_active, is_trial, trial_days, created_at
		FROM subscriptions WHERE id = ?`, id)

	var (
		sub         core.Subscription
		cycle       string
		billingDate string
		isActive    int64
		isTrial     int64
	)
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Category, &sub.Cost, &cycle,
		&billingDate, &isActive, &isTrial, &sub.TrialDays, &sub.CreatedAt); err != nil {
		return core.Subscription{}, fmt.Errorf("get subscription %s: %w", id, err)
	}
	sub.BillingCycle = core.BillingCycle(cycle)
	sub.IsActive = isActive != 0
	sub.IsTrial = isTrial != 0
	if parsed, err := time.Parse(dateLayout, billingDate); err == nil {
		sub.NextBillingDate = parsed
	}
	return sub, nil
}

// InsertSubscription writes a subscription record. Writes belong to the
// CRUD layer that owns the records; the repository only provides the
// persistence primitive.
func (r *SQLiteRepository) InsertSubscription(ctx context.Context, sub core.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validate subscription: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO subscriptions
		(id, name, category, cost, billing_cycle, next_billing_date, is_active, is_trial, trial_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.Category, sub.Cost, string(sub.BillingCycle),
		sub.NextBillingDate.Format(dateLayout), boolToInt(sub.IsActive), boolToInt(sub.IsTrial),
		sub.TrialDays, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription saved",
		"id", sub.ID,
		"name", sub.Name,
		"billing_cycle", sub.BillingCycle,
		"cost", sub.Cost)
	return nil
}

// UpdateSubscription overwrites a subscription record in place.
func (r *SQLiteRepository) UpdateSubscription(ctx context.Context, sub core.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validate subscription: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET
		name = ?, category = ?, cost = ?, billing_cycle = ?, next_billing_date = ?,
		is_active = ?, is_trial = ?, trial_days = ?
		WHERE id = ?`,
		sub.Name, sub.Category, sub.Cost, string(sub.BillingCycle),
		sub.NextBillingDate.Format(dateLayout), boolToInt(sub.IsActive), boolToInt(sub.IsTrial),
		sub.TrialDays, sub.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %s not found", sub.ID)
	}
	return nil
}

// DeleteSubscription removes a subscription record. Its history entries
// are append-only and stay behind.
func (r *SQLiteRepository) DeleteSubscription(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %s not found", id)
	}
	return nil
}

// AppendHistory appends one entry to the history log and returns its id.
func (r *SQLiteRepository) AppendHistory(ctx context.Context, entry core.HistoryEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("validate history entry: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO subscription_history
		(subscription_id, subscription_name, action, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SubscriptionID, entry.SubscriptionName, string(entry.Action),
		entry.OldValue, entry.NewValue, entry.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("append history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history entry id: %w", err)
	}
	return id, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
