// ABOUTME: In-memory fan-out of state snapshots to engine observers
// ABOUTME: Slow observers skip intermediate snapshots but always get the latest one

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/2389/chatwidget/internal/state"
)

const (
	// subscriberBufferSize is the channel buffer for each observer.
	subscriberBufferSize = 64
)

type observer struct {
	ch chan state.Snapshot
	// done is closed on removal so the context watcher can exit.
	done chan struct{}
}

// SnapshotBroadcaster publishes state snapshots to every registered observer.
type SnapshotBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*observer // subID -> observer
	closed      bool
	logger      *slog.Logger

	// watchers counts live context watcher goroutines.
	watchers atomic.Int64
}

// NewSnapshotBroadcaster creates a broadcaster. Pass nil logger for default.
func NewSnapshotBroadcaster(logger *slog.Logger) *SnapshotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotBroadcaster{
		subscribers: make(map[string]*observer),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers an observer. The subscription ends when ctx is
// cancelled, on Unsubscribe, or on Close; the channel is closed then.
func (b *SnapshotBroadcaster) Subscribe(ctx context.Context) (<-chan state.Snapshot, string) {
	subID := uuid.New().String()
	obs := &observer{
		ch:   make(chan state.Snapshot, subscriberBufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(obs.ch)
		return obs.ch, subID
	}
	b.subscribers[subID] = obs
	b.mu.Unlock()

	b.logger.Debug("observer added", "sub_id", subID)

	b.watchers.Add(1)
	go func() {
		defer b.watchers.Add(-1)
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-obs.done:
		}
	}()

	return obs.ch, subID
}

// Publish delivers snap to every observer without blocking. When an
// observer's buffer is full its oldest pending snapshot is discarded.
func (b *SnapshotBroadcaster) Publish(snap state.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, obs := range b.subscribers {
		select {
		case obs.ch <- snap:
			continue
		default:
		}

		// Full: drop the oldest, then retry once
		select {
		case <-obs.ch:
		default:
		}
		select {
		case obs.ch <- snap:
		default:
		}
		b.logger.Debug("coalesced snapshot for slow observer", "sub_id", id)
	}
}

// Deliver sends snap to a single observer without blocking. Returns false if
// the observer is gone or its buffer is full.
func (b *SnapshotBroadcaster) Deliver(subID string, snap state.Snapshot) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obs, ok := b.subscribers[subID]
	if !ok {
		return false
	}
	select {
	case obs.ch <- snap:
		return true
	default:
		return false
	}
}

// Unsubscribe removes an observer and closes its channel.
func (b *SnapshotBroadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obs, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	obs.release()

	b.logger.Debug("observer removed", "sub_id", subID)
}

// Len returns the number of observers.
func (b *SnapshotBroadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every observer channel. Later subscriptions get a closed channel.
func (b *SnapshotBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, obs := range b.subscribers {
		obs.release()
		delete(b.subscribers, id)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}

func (o *observer) release() {
	close(o.ch)
	close(o.done)
}
