// ABOUTME: Subscription handle and typed events delivered by the cable consumer
// ABOUTME: Unsubscribe is idempotent and safe after the transport has dropped

package cable

import (
	"encoding/json"
	"sync"
)

// EventKind classifies a subscription event.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventRejected
	EventReceived
	// EventOverflow replaces frames dropped because the subscriber fell
	// behind. Receivers should resynchronise from another source.
	EventOverflow
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventRejected:
		return "rejected"
	case EventReceived:
		return "received"
	case EventOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is delivered on a subscription's channel. Data is set for
// EventReceived only.
type Event struct {
	Kind EventKind
	Data json.RawMessage
}

// Subscription is one registration for a channel identifier.
type Subscription struct {
	id         string
	identifier string
	consumer   *Consumer

	mu     sync.Mutex
	events chan Event
	closed bool
	// overflowed is set once an EventOverflow is queued and cleared when a
	// later event fits again.
	overflowed bool

	unsubscribeOnce sync.Once
}

// ID returns the local subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Identifier returns the ActionCable identifier string.
func (s *Subscription) Identifier() string {
	return s.identifier
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Unsubscribe removes the subscription and releases its hold on the consumer.
// Calling it more than once, or after DisconnectAll, is a no-op.
func (s *Subscription) Unsubscribe() {
	s.unsubscribeOnce.Do(func() {
		s.consumer.unsubscribe(s)
	})
}

// deliver sends ev without blocking. Returns false when the buffer is full or
// the subscription is closed. A data frame that does not fit is dropped and
// the oldest buffered event makes room for a single EventOverflow, so the
// receiver learns that it missed something.
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		s.overflowed = false
		return true
	default:
	}

	if ev.Kind != EventReceived || s.overflowed {
		return false
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- Event{Kind: EventOverflow}:
		s.overflowed = true
	default:
	}
	return false
}

// close closes the event channel once.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
