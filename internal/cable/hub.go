// ABOUTME: In-memory fan-out of cable frames to subscriptions keyed by identifier
// ABOUTME: Tracks which identifiers the server has confirmed on the current connection

package cable

import (
	"log/slog"
	"sync"
)

const (
	// subscriberBufferSize is the event buffer for each subscription.
	subscriberBufferSize = 64
)

// hub routes events to subscriptions. Several subscriptions may share one
// identifier; the server only sees one subscribe/unsubscribe per identifier.
type hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscription // identifier -> subID -> sub
	confirmed   map[string]bool
	logger      *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		subscribers: make(map[string]map[string]*Subscription),
		confirmed:   make(map[string]bool),
		logger:      logger,
	}
}

// add registers sub. Returns true when it is the first subscription for its
// identifier, and whether the identifier is already confirmed.
func (h *hub) add(sub *Subscription) (first, confirmed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sub.identifier]
	if !ok {
		subs = make(map[string]*Subscription)
		h.subscribers[sub.identifier] = subs
	}
	subs[sub.id] = sub

	h.logger.Debug("subscriber added",
		"identifier", sub.identifier,
		"sub_id", sub.id)

	return len(subs) == 1, h.confirmed[sub.identifier]
}

// remove unregisters sub and closes its channel. Returns whether sub was
// registered and whether it was the last one for its identifier.
func (h *hub) remove(sub *Subscription) (removed, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sub.identifier]
	if !ok {
		return false, false
	}
	if _, exists := subs[sub.id]; !exists {
		return false, false
	}

	delete(subs, sub.id)
	sub.close()

	if len(subs) == 0 {
		delete(h.subscribers, sub.identifier)
		delete(h.confirmed, sub.identifier)
		last = true
	}

	h.logger.Debug("subscriber removed",
		"identifier", sub.identifier,
		"sub_id", sub.id)

	return true, last
}

// publish sends ev to every subscription of identifier. Events are dropped
// for subscriptions whose buffers are full; a dropped data frame leaves an
// EventOverflow in its place.
func (h *hub) publish(identifier string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subscribers[identifier] {
		if sub.deliver(ev) {
			delivered++
			continue
		}
		h.logger.Warn("dropped event for slow subscriber",
			"identifier", identifier,
			"sub_id", sub.id,
			"kind", ev.Kind.String())
	}
	return delivered
}

// publishAll sends ev to every subscription.
func (h *hub) publishAll(ev Event) {
	for _, id := range h.identifiers() {
		h.publish(id, ev)
	}
}

// setConfirmed records the server's confirmation state for identifier.
func (h *hub) setConfirmed(identifier string, v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[identifier]; !ok {
		return
	}
	if v {
		h.confirmed[identifier] = true
	} else {
		delete(h.confirmed, identifier)
	}
}

// clearConfirmed forgets all confirmations, e.g. after the connection drops.
func (h *hub) clearConfirmed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirmed = make(map[string]bool)
}

// rejectAll removes every subscription of identifier after delivering a
// rejection. Returns the number of subscriptions removed.
func (h *hub) rejectAll(identifier string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[identifier]
	for _, sub := range subs {
		sub.deliver(Event{Kind: EventRejected})
		sub.close()
	}
	delete(h.subscribers, identifier)
	delete(h.confirmed, identifier)
	return len(subs)
}

// identifiers returns all identifiers with at least one subscription.
func (h *hub) identifiers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	return ids
}

// count returns the number of registered subscriptions.
func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, subs := range h.subscribers {
		n += len(subs)
	}
	return n
}

// closeAll delivers ev to every subscription, closes them and empties the hub.
// Returns the number of subscriptions closed.
func (h *hub) closeAll(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for identifier, subs := range h.subscribers {
		for subID, sub := range subs {
			sub.deliver(ev)
			sub.close()
			delete(subs, subID)
			n++
		}
		delete(h.subscribers, identifier)
	}
	h.confirmed = make(map[string]bool)

	h.logger.Debug("hub closed", "subscriptions", n)
	return n
}
