package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// TransactionEvent announces a transaction write. Consumers load the current
// record by ID, so the payload carries no amounts or descriptions.
type TransactionEvent struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	UserEmail string    `json:"userEmail"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionEvent(id string, action Action, userEmail string, version int64) TransactionEvent {
	return TransactionEvent{
		ID:        id,
		Action:    action,
		UserEmail: userEmail,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, err
	}
	if e.ID == "" {
		return TransactionEvent{}, fmt.Errorf("event without id")
	}
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return TransactionEvent{}, fmt.Errorf("unknown action %q", e.Action)
	}
	return e, nil
}
