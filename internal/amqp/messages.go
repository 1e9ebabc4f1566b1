package amqp

import (
	"encoding/json"
	"time"
)

// EventType names a ledger change.
type EventType string

const (
	MovementCreated   EventType = "movement.created"
	MovementUpdated   EventType = "movement.updated"
	MovementDeleted   EventType = "movement.deleted"
	CategoryCreated   EventType = "category.created"
	CategoryDeleted   EventType = "category.deleted"
	OpeningBalanceSet EventType = "opening_balance.set"
)

// LedgerEvent is a lightweight change notification. It carries only the
// id of the affected row; consumers read the current state from the store.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(typ EventType, id int64) *LedgerEvent {
	return &LedgerEvent{
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event published by Publish.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
