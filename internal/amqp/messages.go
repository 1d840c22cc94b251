package amqp

import (
	"encoding/json"
	"time"
)

// InvalidationMessage announces that the subscription store changed and
// derived views must be recomputed. It carries only identifiers; the
// worker reads the current state from the database, so stale or
// duplicated deliveries are harmless.
type InvalidationMessage struct {
	SubscriptionID string    `json:"subscriptionId"`
	Action         string    `json:"action"`
	Version        string    `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewInvalidationMessage(subscriptionID, action, version string) *InvalidationMessage {
	return &InvalidationMessage{
		SubscriptionID: subscriptionID,
		Action:         action,
		Version:        version,
		Timestamp:      time.Now(),
	}
}

func (m *InvalidationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InvalidationMessageFromJSON(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
