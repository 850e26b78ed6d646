package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType names a ledger mutation.
type EventType string

const (
	EventExpenseCreated  EventType = "expense.created"
	EventExpenseUpdated  EventType = "expense.updated"
	EventExpenseDeleted  EventType = "expense.deleted"
	EventCategoryCreated EventType = "category.created"
)

// LedgerEvent is a lightweight notification of a ledger mutation.
// Consumers fetch the current record by id instead of trusting a payload.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

var ErrInvalidEvent = errors.New("invalid ledger event")

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(t EventType, userID, id string) *LedgerEvent {
	return &LedgerEvent{
		Type:      t,
		UserID:    userID,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

// Valid reports whether the event has a known type and both ids.
func (e *LedgerEvent) Valid() bool {
	switch e.Type {
	case EventExpenseCreated, EventExpenseUpdated, EventExpenseDeleted, EventCategoryCreated:
	default:
		return false
	}
	return e.UserID != "" && e.ID != ""
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !ev.Valid() {
		return nil, ErrInvalidEvent
	}
	return &ev, nil
}
