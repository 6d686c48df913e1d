// ABOUTME: Thread-safe TTL+LRU set of keys seen during one conversation session
// ABOUTME: Remembers finished message IDs and replayed frame fingerprints

package dedupe

import (
	"container/list"
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

// Defaults for a conversation session.
const (
	DefaultTTL     = 30 * time.Minute
	DefaultMaxSize = 4096

	cleanupInterval = time.Minute
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a bounded set of keys with per-key expiry. Insertion order lives
// in a linked list so eviction of the oldest key is O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. Non-positive ttl or maxSize fall back to the defaults.
// A background goroutine drops expired keys until Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupLoop()
	return c
}

// FinishedKey is the key recording that a message reached its final state.
func FinishedKey(messageID string) string {
	return "finished:" + messageID
}

// FrameKey fingerprints a pushed frame so byte-identical replays collide.
func FrameKey(messageID, content string, finished bool) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(messageID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(content))
	if finished {
		_, _ = h.Write([]byte{1})
	}
	return "frame:" + strconv.FormatUint(h.Sum64(), 16)
}

// Seen reports whether key is present and not expired.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && c.now().Sub(e.seenAt) < c.ttl
}

// SeenOrMark marks key and reports whether it was already present. The check
// and the mark happen under one lock.
func (c *Cache) SeenOrMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && c.now().Sub(e.seenAt) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key, evicting the oldest key when full.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

func (c *Cache) markLocked(key string) {
	now := c.now()

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
}

// Forget removes key.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// Reset drops every key, starting a fresh session.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = make(map[string]*entry)
	c.order.Init()
}

// Len returns the number of stored keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.seen {
		if now.Sub(e.seenAt) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
