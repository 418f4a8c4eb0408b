package amqp

import (
	"encoding/json"
	"time"
)

// Routing keys of ledger events on the topic exchange.
const (
	UserRegistered     = "user.registered"
	UserUpdated        = "user.updated"
	UserStaffChanged   = "user.staff_changed"
	CategoryCreated    = "category.created"
	CategoryUpdated    = "category.updated"
	CategoryDeleted    = "category.deleted"
	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
	TransactionDeleted = "transaction.deleted"
	TransactionPaid    = "transaction.paid"
	TransactionUnpaid  = "transaction.unpaid"
)

// Event is a lightweight notification that something changed. Consumers
// fetch the current row by id when they need details.
type Event struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	UserID    string    `json:"user_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(typ, entityID, userID, actorID string) Event {
	e := Event{
		Type:      typ,
		EntityID:  entityID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	if actorID != userID {
		e.ActorID = actorID
	}
	return e
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
