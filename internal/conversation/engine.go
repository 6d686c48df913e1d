// ABOUTME: Conversation orchestrator: bootstrap, send, push handling, polling fallback, reset
// ABOUTME: A generation counter discards results of work started before the latest reset

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/cable"
	"github.com/2389/chatwidget/internal/dedupe"
	"github.com/2389/chatwidget/internal/metrics"
	"github.com/2389/chatwidget/internal/state"
)

// User-facing error messages stored in the connection state.
const (
	ErrMsgConnection = "Verbindung fehlgeschlagen. Bitte versuchen Sie es erneut."
	ErrMsgSend       = "Nachricht konnte nicht gesendet werden."
	ErrMsgTimeout    = "Zeitüberschreitung bei der Antwort. Bitte erneut versuchen."
	ErrMsgLoad       = "Fehler beim Laden der Antwort."
)

// PendingPlaceholder is the content the backend stores for an assistant
// message that has not been generated yet.
const PendingPlaceholder = "..."

// Polling fallback defaults.
const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 30
)

var (
	// ErrSendRejected is returned when a send is dropped by its guards: empty
	// content, no conversation yet, or a response still pending.
	ErrSendRejected = errors.New("send rejected")

	// ErrTimeout is reported when the polling fallback exhausts its attempts.
	ErrTimeout = errors.New("response timed out")

	// ErrSuperseded is returned by operations whose results were discarded
	// because the engine was reset or closed while they ran.
	ErrSuperseded = errors.New("superseded by reset")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// Reasons for dropped push events, used as metric labels.
const (
	dropPlaceholder = "placeholder"
	dropFinished    = "finished"
	dropReplay      = "replay"
	dropStale       = "stale"
	dropNoID        = "no_id"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Pass nil for default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPusher enables the push channel. Without it the engine relies on
// polling alone.
func WithPusher(p Pusher) Option {
	return func(e *Engine) { e.pusher = p }
}

// WithPolling sets the fallback polling interval and attempt budget.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.pollInterval = interval
		}
		if attempts > 0 {
			e.pollAttempts = attempts
		}
	}
}

// WithAccumulateChunks appends stream chunk content to the streaming message.
// Off by default: chunks then only toggle the streaming indicator.
func WithAccumulateChunks(v bool) Option {
	return func(e *Engine) { e.accumulate = v }
}

// WithMetrics records engine activity on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = rec }
}

// WithDedupe replaces the per-session dedupe cache.
func WithDedupe(c *dedupe.Cache) Option {
	return func(e *Engine) { e.seen = c }
}

// Engine owns one conversation session and keeps its state store in sync
// with the backend.
type Engine struct {
	backend      Backend
	pusher       Pusher
	store        *state.Store
	seen         *dedupe.Cache
	observers    *SnapshotBroadcaster
	metrics      *metrics.Recorder
	logger       *slog.Logger
	pollInterval time.Duration
	pollAttempts int
	accumulate   bool

	mu            sync.Mutex
	generation    uint64
	bootstrapping bool
	closed        bool
	sub           Subscription
	pollCancel    context.CancelFunc
	wg            sync.WaitGroup
}

// NewEngine creates an engine in the uninitialized state. Call Bootstrap to
// start a conversation.
func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:      backend,
		store:        state.NewStore(),
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "conversation")
	if e.seen == nil {
		e.seen = dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize)
	}
	e.observers = NewSnapshotBroadcaster(e.logger)
	return e
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() state.Snapshot {
	return e.store.Snapshot()
}

// Subscribe returns a channel that receives the current snapshot followed by
// a new one after every state change. It closes when ctx ends or on Close.
func (e *Engine) Subscribe(ctx context.Context) <-chan state.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, id := e.observers.Subscribe(ctx)
	if !e.closed {
		e.observers.Deliver(id, e.store.Snapshot())
	}
	return ch
}

// Bootstrap creates a conversation, hydrates the store from it and opens the
// push subscription. It is a no-op while a conversation exists or another
// bootstrap is running.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.store.ConversationID() != "" || e.bootstrapping {
		e.mu.Unlock()
		return nil
	}
	e.bootstrapping = true
	gen := e.generation
	changed := e.store.SetInitializing(true)
	changed = e.store.ClearError() || changed
	if changed {
		e.publishLocked()
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if gen == e.generation {
			e.bootstrapping = false
		}
		e.mu.Unlock()
	}()

	e.logger.Debug("bootstrapping conversation")

	created, err := e.backend.CreateConversation(ctx)
	if err != nil {
		return e.failBootstrap(gen, fmt.Errorf("creating conversation: %w", err))
	}
	convID := string(created.ConversationID)

	if !e.update(gen, func(s *state.Store) bool { return s.SetConversationID(convID) }) {
		return ErrSuperseded
	}
	logger := e.logger.With("conversation_id", convID)

	conv, fetchErr := e.backend.FetchConversation(ctx, convID)
	if fetchErr != nil {
		// The conversation exists server-side, so push updates are still wanted.
		e.connect(ctx, gen, convID)
		return e.failBootstrap(gen, fmt.Errorf("fetching conversation: %w", fetchErr))
	}

	hydration := conv.Hydration()
	if !e.update(gen, func(s *state.Store) bool {
		changed := s.ApplySnapshot(hydration)
		return s.SetInitializing(false) || changed
	}) {
		return ErrSuperseded
	}

	e.connect(ctx, gen, convID)
	e.metrics.Bootstrap(metrics.OutcomeOK)
	logger.Info("conversation ready", "messages", len(hydration.Messages))
	return nil
}

func (e *Engine) failBootstrap(gen uint64, err error) error {
	e.metrics.Bootstrap(metrics.OutcomeError)
	if !e.update(gen, func(s *state.Store) bool {
		changed := s.SetError(ErrMsgConnection)
		return s.SetInitializing(false) || changed
	}) {
		return ErrSuperseded
	}
	e.logger.Error("bootstrap failed", "error", err)
	return err
}

// connect opens the push subscription for convID, replacing any previous one.
// Failure leaves the engine in polling-only mode.
func (e *Engine) connect(ctx context.Context, gen uint64, convID string) {
	if e.pusher == nil {
		return
	}

	// Only one live subscription may exist; the old one must be gone before
	// the new one can start delivering frames.
	e.mu.Lock()
	prev := e.sub
	e.sub = nil
	e.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}

	sub, err := e.pusher.Subscribe(context.WithoutCancel(ctx), convID, e.callbacks(gen, convID))
	if err != nil {
		e.logger.Warn("push subscription failed, falling back to polling",
			"conversation_id", convID,
			"error", err)
		return
	}

	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	stale := e.sub
	e.sub = sub
	e.mu.Unlock()

	if stale != nil {
		stale.Unsubscribe()
	}
}

func (e *Engine) callbacks(gen uint64, convID string) cable.Callbacks {
	return cable.Callbacks{
		OnMessage: func(ev cable.MessageEvent) {
			e.handleMessage(gen, ev)
		},
		OnStreamChunk: func(chunk cable.StreamChunk) {
			e.handleChunk(gen, chunk)
		},
		OnConnected: func() {
			e.update(gen, func(s *state.Store) bool { return s.SetConnected(true) })
		},
		OnDisconnected: func() {
			e.handleConnectionLost(gen, convID, nil)
		},
		OnRejected: func() {
			e.handleConnectionLost(gen, convID, cable.ErrSubscriptionRejected)
		},
		OnOverflow: func() {
			e.handleOverflow(gen, convID)
		},
	}
}

// Send appends an optimistic user message, posts it, and arms the polling
// fallback when the push channel cannot deliver the answer. Guard violations
// return ErrSendRejected and leave the state untouched.
func (e *Engine) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	convID := e.store.ConversationID()
	if content == "" || convID == "" || e.store.IsLoading() {
		e.mu.Unlock()
		e.metrics.Send(metrics.OutcomeRejected)
		return ErrSendRejected
	}

	gen := e.generation
	localID := "local-" + uuid.Must(uuid.NewV7()).String()
	e.store.AddLocal(state.Message{
		ID:        localID,
		Role:      state.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	})
	e.store.SetLoading(true)
	e.store.ClearError()
	e.publishLocked()
	e.mu.Unlock()

	if _, err := e.backend.SendMessage(ctx, convID, content); err != nil {
		e.metrics.Send(metrics.OutcomeError)
		e.update(gen, func(s *state.Store) bool {
			changed := s.Remove(localID)
			changed = s.SetLoading(false) || changed
			return s.SetError(ErrMsgSend) || changed
		})
		e.logger.Error("sending message failed", "conversation_id", convID, "error", err)
		return fmt.Errorf("sending message: %w", err)
	}
	e.metrics.Send(metrics.OutcomeOK)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.generation {
		return ErrSuperseded
	}
	if !e.store.IsConnected() && e.store.IsLoading() {
		e.startPollingLocked(gen, convID)
	}
	return nil
}

// SubmitFeedback posts feedback for an assistant message. It never changes
// conversation state; the result only reports success.
func (e *Engine) SubmitFeedback(ctx context.Context, messageID, feedback string) bool {
	convID := e.store.ConversationID()
	feedback = strings.TrimSpace(feedback)
	if convID == "" || messageID == "" || feedback == "" {
		return false
	}

	if _, err := e.backend.SubmitFeedback(ctx, convID, messageID, feedback); err != nil {
		e.logger.Warn("submitting feedback failed",
			"conversation_id", convID,
			"message_id", messageID,
			"error", err)
		return false
	}
	return true
}

// ClearError dismisses the error banner.
func (e *Engine) ClearError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.ClearError() {
		e.publishLocked()
	}
}

// Reset abandons the session: polling stops, the push subscription is
// released, the store returns to its initial state and results of in-flight
// work are discarded. Bootstrap may run again afterwards.
func (e *Engine) Reset() {
	e.mu.Lock()
	sub := e.resetLocked()
	if !e.closed {
		e.publishLocked()
	}
	e.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	e.logger.Debug("conversation reset")
}

func (e *Engine) resetLocked() Subscription {
	e.generation++
	e.bootstrapping = false
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	sub := e.sub
	e.sub = nil
	e.store.Reset()
	e.seen.Reset()
	return sub
}

// Restart resets the session and bootstraps a new conversation.
func (e *Engine) Restart(ctx context.Context) error {
	e.Reset()
	return e.Bootstrap(ctx)
}

// Close resets the engine and turns it off for good. Observer channels close.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	sub := e.resetLocked()
	e.closed = true
	e.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	e.wg.Wait()
	e.observers.Close()
	e.seen.Close()
	e.logger.Debug("engine closed")
}

// update applies fn when gen is still current and notifies observers if the
// state changed. Returns false when the result was discarded.
func (e *Engine) update(gen uint64, fn func(s *state.Store) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.generation {
		return false
	}
	if fn(e.store) {
		e.publishLocked()
	}
	return true
}

func (e *Engine) publishLocked() {
	e.observers.Publish(e.store.Snapshot())
}

func (e *Engine) handleMessage(gen uint64, ev cable.MessageEvent) {
	msg := ev.Message()
	reason := ""

	live := e.update(gen, func(s *state.Store) bool {
		switch {
		case msg.ID == "":
			reason = dropNoID
			return false
		case ev.Result == PendingPlaceholder && !ev.HasErrors:
			reason = dropPlaceholder
			return false
		case e.seen.Seen(dedupe.FinishedKey(msg.ID)):
			reason = dropFinished
			return false
		case isStale(s, msg, ev.Finished()):
			reason = dropStale
			return false
		case e.seen.SeenOrMark(dedupe.FrameKey(msg.ID, msg.Content, ev.Finished())):
			reason = dropReplay
			return false
		}

		if !ev.IsAssistant() {
			if s.ConfirmLocal(msg.Content, msg.ID) {
				return true
			}
			return s.Upsert(msg)
		}

		changed := s.SetLoading(false)
		if ev.Finished() {
			e.seen.Mark(dedupe.FinishedKey(msg.ID))
			changed = s.StopStreaming() || changed
		} else {
			changed = s.StartStreaming(msg.ID) || changed
		}
		return s.Upsert(msg) || changed
	})

	if live && reason != "" {
		e.metrics.EventDropped(reason)
		e.logger.Debug("ignored push message", "message_id", msg.ID, "reason", reason)
	}
}

// isStale reports whether a non-final event carries an older prefix of the
// content already stored for its message. Cumulative updates never shrink.
func isStale(s *state.Store, msg state.Message, finished bool) bool {
	if finished {
		return false
	}
	current, ok := s.Content(msg.ID)
	return ok && len(msg.Content) < len(current) && strings.HasPrefix(current, msg.Content)
}

func (e *Engine) handleChunk(gen uint64, chunk cable.StreamChunk) {
	id := string(chunk.MessageID)
	if id == "" {
		e.metrics.EventDropped(dropNoID)
		return
	}

	dropped := false
	e.update(gen, func(s *state.Store) bool {
		if e.seen.Seen(dedupe.FinishedKey(id)) {
			dropped = true
			return false
		}

		var changed bool
		if chunk.Finished {
			changed = s.StopStreaming()
		} else {
			changed = s.StartStreaming(id)
		}
		if e.accumulate && chunk.Content != "" {
			changed = s.AppendContent(id, chunk.Content) || changed
		}
		return changed
	})

	if dropped {
		e.metrics.EventDropped(dropFinished)
	}
}

func (e *Engine) handleConnectionLost(gen uint64, convID string, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.generation {
		return
	}
	if errors.Is(cause, cable.ErrSubscriptionRejected) {
		e.logger.Warn("push subscription rejected, using polling", "conversation_id", convID)
		e.sub = nil
	}
	if e.store.SetConnected(false) {
		e.publishLocked()
	}
	if e.store.IsLoading() {
		e.startPollingLocked(gen, convID)
	}
}

// handleOverflow reacts to push frames lost in transit. The pending reply is
// recovered by polling the conversation; the subscription stays up.
func (e *Engine) handleOverflow(gen uint64, convID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.generation {
		return
	}
	e.logger.Warn("push frames dropped, resyncing", "conversation_id", convID)
	if e.store.IsLoading() {
		e.startPollingLocked(gen, convID)
	}
}

// startPollingLocked starts the fallback loop unless one is running.
func (e *Engine) startPollingLocked(gen uint64, convID string) {
	if e.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.pollCancel = cancel
	e.wg.Add(1)
	go e.poll(ctx, cancel, gen, convID)
}

func (e *Engine) poll(ctx context.Context, cancel context.CancelFunc, gen uint64, convID string) {
	defer e.wg.Done()
	defer func() {
		cancel()
		e.mu.Lock()
		if gen == e.generation {
			e.pollCancel = nil
		}
		e.mu.Unlock()
	}()

	logger := e.logger.With("conversation_id", convID)
	logger.Debug("polling for response", "interval", e.pollInterval, "attempts", e.pollAttempts)

	for attempt := 0; ; attempt++ {
		if attempt >= e.pollAttempts {
			e.metrics.Poll(metrics.OutcomeTimeout)
			e.update(gen, func(s *state.Store) bool {
				changed := s.SetLoading(false)
				return s.SetError(ErrMsgTimeout) || changed
			})
			logger.Warn("polling gave up", "error", ErrTimeout, "attempts", attempt)
			return
		}

		if attempt > 0 {
			timer := time.NewTimer(e.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		// The push channel may have delivered the answer in the meantime.
		if !e.awaiting(gen) {
			return
		}

		conv, err := e.backend.FetchConversation(ctx, convID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.metrics.Poll(metrics.OutcomeError)
			e.update(gen, func(s *state.Store) bool {
				changed := s.SetLoading(false)
				return s.SetError(ErrMsgLoad) || changed
			})
			logger.Error("polling failed", "error", err)
			return
		}

		answer, ok := answered(conv)
		if !ok {
			e.metrics.Poll(metrics.OutcomePending)
			continue
		}

		e.metrics.Poll(metrics.OutcomeOK)
		msgs := api.MapMessages(conv.Messages)
		e.update(gen, func(s *state.Store) bool {
			e.seen.Mark(dedupe.FinishedKey(string(answer.ID)))
			changed := s.MergeMessages(msgs)
			changed = s.StopStreaming() || changed
			return s.SetLoading(false) || changed
		})
		logger.Debug("polling received response", "message_id", answer.ID, "attempts", attempt+1)
		return
	}
}

func (e *Engine) awaiting(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && gen == e.generation && e.store.IsLoading()
}

// answered returns the assistant reply to the latest user message, if the
// backend has produced one. The pending placeholder does not count, nor does
// an assistant message that precedes the user's last message.
func answered(conv *api.ConversationResponse) (api.Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if m.MessageType != api.MessageTypeAI {
			return api.Message{}, false
		}
		if m.Result != "" && m.Result != PendingPlaceholder {
			return m, true
		}
	}
	return api.Message{}, false
}
