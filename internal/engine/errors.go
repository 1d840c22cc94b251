package engine

import (
	"errors"
	"fmt"

	"subtrack/internal/core"
)

// ErrUnknownCycle is returned by the calendar primitives when a billing
// cycle outside the supported set is encountered. Callers that know the
// offending subscription wrap it into a ConfigurationError.
var ErrUnknownCycle = errors.New("unknown billing cycle")

// ConfigurationError marks a subscription whose cadence input cannot be
// interpreted. It is fatal for that single subscription's expansion and
// is caught at the per-record boundary during aggregation; one bad record
// never aborts the whole computation.
type ConfigurationError struct {
	SubscriptionID string
	Cycle          core.BillingCycle
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("subscription %s: unrecognized billing cycle %q", e.SubscriptionID, e.Cycle)
}

func (e *ConfigurationError) Unwrap() error { return ErrUnknownCycle }

func newConfigurationError(sub core.Subscription) *ConfigurationError {
	return &ConfigurationError{SubscriptionID: sub.ID, Cycle: sub.BillingCycle}
}
