// Package events announces ledger changes to the notification side of the
// system. Publishing happens after the ledger write has committed and is best
// effort: a failed publish never undoes or fails the write.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event and doubles as its AMQP routing key.
type Type string

const (
	ExpenseAdded       Type = "expense.added"
	ExpenseDeleted     Type = "expense.deleted"
	SettlementRecorded Type = "settlement.recorded"
	MemberAdded        Type = "group.member_added"
)

// Event is the envelope published for every ledger change.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	GroupID    string    `json:"group_id"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New builds an event with a fresh ID.
func New(t Type, groupID, actorID string, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		GroupID:    groupID,
		ActorID:    actorID,
		OccurredAt: at,
		Payload:    payload,
	}
}

// Publisher delivers events to whoever listens.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the types of recorded events in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
