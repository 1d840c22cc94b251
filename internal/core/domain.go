package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly    BillingCycle = "weekly"
	Monthly   BillingCycle = "monthly"
	Quarterly BillingCycle = "quarterly"
	Yearly    BillingCycle = "yearly"
)

// Known history actions. The action set is open: storage may contain
// values outside this list and every consumer must degrade to a generic
// branch instead of failing.
const (
	ActionCreated        Action = "created"
	ActionUpdated        Action = "updated"
	ActionDeleted        Action = "deleted"
	ActionPaymentSuccess Action = "payment_success"
	ActionPaymentFailed  Action = "payment_failed"
	ActionCostChanged    Action = "cost_changed"
	ActionRenewal        Action = "renewal"
	ActionPause          Action = "pause"
	ActionResume         Action = "resume"
	ActionCancel         Action = "cancel"
	ActionRefund         Action = "refund"
	ActionTrialStart     Action = "trial_start"
	ActionTrialEnd       Action = "trial_end"
)

type (
	BillingCycle string

	Action string

	// Subscription is the persisted record the engine projects from.
	// The engine treats it as an immutable input for a given snapshot;
	// mutation belongs to the CRUD layer that owns the record.
	Subscription struct {
		ID              string
		Name            string
		Category        string
		Cost            float64
		BillingCycle    BillingCycle
		NextBillingDate time.Time
		IsActive        bool
		IsTrial         bool
		TrialDays       int
		CreatedAt       time.Time
	}

	// HistoryEntry is one record of the append-only lifecycle log.
	// Entries are immutable once written; the timeline builder reorders
	// and groups them but never edits action or values.
	HistoryEntry struct {
		ID               int64
		SubscriptionID   string
		SubscriptionName string
		Action           Action
		OldValue         string
		NewValue         string
		CreatedAt        time.Time
	}
)

var (
	ErrEmptyID          = errors.New("empty subscription id")
	ErrEmptyName        = errors.New("empty subscription name")
	ErrInvalidCost      = errors.New("invalid cost")
	ErrInvalidCycle     = errors.New("invalid billing cycle")
	ErrZeroBillingDate  = errors.New("next billing date cannot be zero")
	ErrEmptyHistoryName = errors.New("empty history subscription name")
)

// ValidCycle reports whether c is one of the four supported cadences.
func ValidCycle(c BillingCycle) bool {
	switch c {
	case Weekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// CycleMonths returns the length of one cycle step in calendar months.
// Weekly has no whole-month length and returns (0, false).
func CycleMonths(c BillingCycle) (int, bool) {
	switch c {
	case Monthly:
		return 1, true
	case Quarterly:
		return 3, true
	case Yearly:
		return 12, true
	}
	return 0, false
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if s.Cost < 0 {
		return ErrInvalidCost
	}
	if !ValidCycle(s.BillingCycle) {
		return ErrInvalidCycle
	}
	if s.NextBillingDate.IsZero() {
		return ErrZeroBillingDate
	}
	return nil
}

func (h HistoryEntry) Validate() error {
	if strings.TrimSpace(h.SubscriptionName) == "" {
		return ErrEmptyHistoryName
	}
	if strings.TrimSpace(string(h.Action)) == "" {
		return errors.New("empty history action")
	}
	if h.CreatedAt.IsZero() {
		return errors.New("history entry has zero timestamp")
	}
	return nil
}
