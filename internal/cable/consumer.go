// ABOUTME: Shared, reference-counted ActionCable connection with stale detection and redial
// ABOUTME: Routes confirm/reject/data frames to subscriptions through the hub

package cable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Defaults mirror the ActionCable JavaScript consumer.
const (
	DefaultStaleThreshold = 6 * time.Second
	DefaultMinBackoff     = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

var (
	// ErrSubscriptionRejected is reported when the server refuses a subscription.
	ErrSubscriptionRejected = errors.New("subscription rejected")

	errStale            = errors.New("connection stale")
	errServerDisconnect = errors.New("server requested disconnect")
	errNoReconnect      = errors.New("server requested disconnect without reconnect")
)

// Observer receives connection lifecycle notifications. Implementations must
// not block.
type Observer interface {
	Connected()
	Disconnected(reason error)
	FrameReceived(frameType string)
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithLogger sets the logger. Pass nil for default.
func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(hc *http.Client) ConsumerOption {
	return func(c *Consumer) { c.httpClient = hc }
}

// WithHeader adds headers to the WebSocket handshake.
func WithHeader(h http.Header) ConsumerOption {
	return func(c *Consumer) { c.header = h.Clone() }
}

// WithStaleThreshold sets how long the connection may stay silent before it
// is considered dead. Servers ping every 3 seconds.
func WithStaleThreshold(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithBackoff sets the redial backoff bounds.
func WithBackoff(minDelay, maxDelay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if minDelay > 0 {
			c.minBackoff = minDelay
		}
		if maxDelay >= c.minBackoff {
			c.maxBackoff = maxDelay
		}
	}
}

// WithCloseWhenIdle closes the connection when the last reference is released.
func WithCloseWhenIdle(v bool) ConsumerOption {
	return func(c *Consumer) { c.closeWhenIdle = v }
}

// WithObserver registers an observer for connection events.
func WithObserver(o Observer) ConsumerOption {
	return func(c *Consumer) { c.observer = o }
}

// link is the state of one physical connection.
type link struct {
	conn      *websocket.Conn
	welcomed  bool
	requested map[string]bool
}

// Consumer owns the single cable connection shared by all subscriptions.
type Consumer struct {
	url           string
	header        http.Header
	httpClient    *http.Client
	staleAfter    time.Duration
	minBackoff    time.Duration
	maxBackoff    time.Duration
	closeWhenIdle bool
	observer      Observer
	logger        *slog.Logger
	hub           *hub

	mu     sync.Mutex
	refs   int
	link   *link
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer for the cable at url. Nothing is dialed
// until the first Acquire.
func NewConsumer(url string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		url:        url,
		staleAfter: DefaultStaleThreshold,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cable")
	c.hub = newHub(c.logger)
	return c
}

// Acquire takes a reference on the connection, dialing it if needed.
func (c *Consumer) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs++
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Release drops a reference. With WithCloseWhenIdle the connection closes when
// the count reaches zero; otherwise it stays until DisconnectAll.
func (c *Consumer) Release() {
	c.release(1)
}

func (c *Consumer) release(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs -= n
	if c.refs < 0 {
		c.refs = 0
	}
	if c.refs == 0 && c.closeWhenIdle && c.cancel != nil {
		c.logger.Debug("closing idle connection")
		c.cancel()
		c.cancel = nil
		c.done = nil
	}
}

// Refs returns the current reference count.
func (c *Consumer) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Connected reports whether the server has welcomed the current connection.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil && c.link.welcomed
}

// Subscriptions returns the number of live subscriptions.
func (c *Consumer) Subscriptions() int {
	return c.hub.count()
}

// DisconnectAll closes the connection and ends every subscription with a
// final EventDisconnected. A later Subscribe or Acquire dials again.
func (c *Consumer) DisconnectAll() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.done = nil
	c.refs = 0
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	n := c.hub.closeAll(Event{Kind: EventDisconnected})
	c.logger.Info("consumer disconnected", "subscriptions", n)
}

// Subscribe registers a subscription for identifier and acquires a reference
// that Unsubscribe releases.
func (c *Consumer) Subscribe(ctx context.Context, identifier string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if identifier == "" {
		return nil, errors.New("subscribe: empty identifier")
	}

	sub := &Subscription{
		id:         uuid.NewString(),
		identifier: identifier,
		consumer:   c,
		events:     make(chan Event, subscriberBufferSize),
	}

	first, confirmed := c.hub.add(sub)
	c.Acquire()

	switch {
	case confirmed:
		sub.deliver(Event{Kind: EventConnected})
	case first:
		c.sendSubscribe(identifier)
	}
	return sub, nil
}

func (c *Consumer) unsubscribe(sub *Subscription) {
	removed, last := c.hub.remove(sub)
	if !removed {
		return
	}
	if last {
		c.sendCommand(commandUnsubscribe, sub.identifier)
	}
	c.Release()
}

// sendSubscribe sends the subscribe command once per identifier per
// connection, and only after the welcome frame.
func (c *Consumer) sendSubscribe(identifier string) {
	c.mu.Lock()
	l := c.link
	if l == nil || !l.welcomed || l.requested[identifier] {
		c.mu.Unlock()
		return
	}
	l.requested[identifier] = true
	c.mu.Unlock()

	c.write(l.conn, command{Command: commandSubscribe, Identifier: identifier})
}

func (c *Consumer) sendCommand(cmd, identifier string) {
	c.mu.Lock()
	l := c.link
	if l == nil || !l.welcomed {
		c.mu.Unlock()
		return
	}
	delete(l.requested, identifier)
	c.mu.Unlock()

	c.write(l.conn, command{Command: cmd, Identifier: identifier})
}

func (c *Consumer) write(conn *websocket.Conn, cmd command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Error("encoding command", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		// The read loop notices the broken connection and redials.
		c.logger.Warn("writing command failed",
			"command", cmd.Command,
			"identifier", cmd.Identifier,
			"error", err)
	}
}

// run keeps a connection alive until ctx is cancelled or the server forbids
// reconnecting.
func (c *Consumer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		welcomed, err := c.serve(ctx)
		if welcomed {
			attempt = 0
			c.hub.publishAll(Event{Kind: EventDisconnected})
			if c.observer != nil {
				c.observer.Disconnected(err)
			}
		}

		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, errNoReconnect) {
			c.logger.Warn("server closed connection without reconnect", "error", err)
			c.mu.Lock()
			if c.done == done {
				c.cancel = nil
				c.done = nil
			}
			c.mu.Unlock()
			return
		}

		delay := c.backoff(attempt)
		attempt++
		c.logger.Info("cable connection lost, redialing",
			"error", err,
			"attempt", attempt,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve dials once and reads frames until the connection ends.
func (c *Consumer) serve(ctx context.Context) (welcomed bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient:   c.httpClient,
		HTTPHeader:   c.header,
		Subprotocols: subprotocols,
	})
	cancel()
	if err != nil {
		return false, fmt.Errorf("dialing cable: %w", err)
	}
	conn.SetReadLimit(readLimit)

	l := &link{conn: conn, requested: make(map[string]bool)}
	c.mu.Lock()
	c.link = l
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.link == l {
			c.link = nil
		}
		c.mu.Unlock()
		c.hub.clearConfirmed()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		readCtx, cancel := context.WithTimeout(ctx, c.staleAfter)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return welcomed, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				return welcomed, errStale
			default:
				return welcomed, fmt.Errorf("reading frame: %w", err)
			}
		}

		var f serverFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		if f.Type == frameWelcome {
			welcomed = true
		}
		if err := c.handleFrame(l, f); err != nil {
			return welcomed, err
		}
	}
}

func (c *Consumer) handleFrame(l *link, f serverFrame) error {
	if c.observer != nil {
		kind := f.Type
		if kind == "" {
			kind = "message"
		}
		c.observer.FrameReceived(kind)
	}

	switch f.Type {
	case frameWelcome:
		c.mu.Lock()
		l.welcomed = true
		c.mu.Unlock()

		c.logger.Debug("cable welcomed")
		if c.observer != nil {
			c.observer.Connected()
		}
		for _, identifier := range c.hub.identifiers() {
			c.sendSubscribe(identifier)
		}

	case framePing:
		// Reading any frame resets the stale deadline.

	case frameConfirm:
		c.hub.setConfirmed(f.Identifier, true)
		c.hub.publish(f.Identifier, Event{Kind: EventConnected})
		c.logger.Debug("subscription confirmed", "identifier", f.Identifier)

	case frameReject:
		c.mu.Lock()
		delete(l.requested, f.Identifier)
		c.mu.Unlock()

		n := c.hub.rejectAll(f.Identifier)
		c.logger.Warn("subscription rejected", "identifier", f.Identifier, "subscriptions", n)
		if n > 0 {
			c.release(n)
		}

	case frameDisconnect:
		if f.Reconnect != nil && !*f.Reconnect {
			return fmt.Errorf("%w: %s", errNoReconnect, f.Reason)
		}
		return fmt.Errorf("%w: %s", errServerDisconnect, f.Reason)

	case "":
		if f.Identifier == "" || len(f.Message) == 0 {
			return nil
		}
		c.hub.publish(f.Identifier, Event{Kind: EventReceived, Data: f.Message})

	default:
		c.logger.Debug("ignoring frame", "type", f.Type)
	}
	return nil
}

// backoff returns the delay before redial attempt n with up to 20% jitter.
func (c *Consumer) backoff(n int) time.Duration {
	d := c.minBackoff
	for i := 0; i < n && d < c.maxBackoff; i++ {
		d *= 2
	}
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d)/5 + 1))
	return d + jitter
}
