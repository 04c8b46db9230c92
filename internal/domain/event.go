package domain

import "time"

// Event is an immutable fact produced by an aggregate state change. Events
// are owned by the aggregate's buffer until the unit of work drains them into
// the outbox; they are never mutated after creation.
type Event interface {
	// EventType returns the stable type tag used to derive the routing key.
	EventType() string
	// OccurredAt returns when the fact happened, used for relay ordering.
	OccurredAt() time.Time
}

// EventBuffer accumulates events raised during a unit of work, in raise
// order. It is a plain value embedded in each aggregate; durability is the
// unit of work's job, the buffer is purely in-memory.
type EventBuffer struct {
	events []Event
}

// Raise appends an event to the buffer.
func (b *EventBuffer) Raise(event Event) {
	b.events = append(b.events, event)
}

// Pending returns the raised-but-undrained events in raise order. The
// returned slice is a copy; mutating it does not affect the buffer.
func (b *EventBuffer) Pending() []Event {
	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Clear empties the buffer. Called by the unit of work only after the
// transaction that staged the events has committed.
func (b *EventBuffer) Clear() {
	b.events = nil
}

// EventSource is implemented by aggregates that raise events. The unit of
// work enumerates sources, stages their pending events inside the business
// transaction and clears them after commit.
type EventSource interface {
	PendingEvents() []Event
	ClearEvents()
}
