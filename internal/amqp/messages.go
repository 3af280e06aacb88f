package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Action names the ledger change carried by a TransactionEvent.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

var ErrInvalidEvent = errors.New("invalid transaction event")

// TransactionEvent announces a ledger change. Consumers fetch the current row
// by ID; deletions carry a Snapshot because the row is gone by then.
type TransactionEvent struct {
	ID        string                       `json:"id"`
	Action    Action                       `json:"action"`
	Timestamp time.Time                    `json:"timestamp"`
	Snapshot  *core.TransactionWithDetails `json:"snapshot,omitempty"`
}

func NewTransactionEvent(action Action, id string, snapshot *core.TransactionWithDetails) TransactionEvent {
	return TransactionEvent{
		ID:        id,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Snapshot:  snapshot,
	}
}

func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, err
	}
	if e.ID == "" {
		return TransactionEvent{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if !e.Action.Valid() {
		return TransactionEvent{}, fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, e.Action)
	}
	return e, nil
}
