// ABOUTME: ChatbotChannel binding that decodes cable payloads into message and stream events
// ABOUTME: One dispatch goroutine per handle keeps callbacks in arrival order

package cable

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/state"
)

// ChannelName is the server-side channel class.
const ChannelName = "ChatbotChannel"

const streamType = "stream"

// MessageEvent is a finalized (or progressively updated) message pushed by
// the server.
type MessageEvent struct {
	ID             api.ID `json:"id"`
	Result         string `json:"result"`
	MessageType    string `json:"message_type"`
	ConversationID api.ID `json:"conversation_id"`
	UpdatedAt      string `json:"updated_at,omitempty"`
	HasErrors      bool   `json:"has_errors,omitempty"`
	IsFinished     *bool  `json:"is_finished,omitempty"`
}

// Finished reports whether the message is complete. An absent flag counts as
// finished.
func (e MessageEvent) Finished() bool {
	return e.IsFinished == nil || *e.IsFinished
}

// IsAssistant reports whether the event carries an assistant message. Only
// an explicit user message_type marks a user message; follow-up frames often
// omit the type and belong to the assistant reply they update.
func (e MessageEvent) IsAssistant() bool {
	return e.MessageType != api.MessageTypeUser
}

// Message converts the event into the store representation.
func (e MessageEvent) Message() state.Message {
	messageType := api.MessageTypeUser
	if e.IsAssistant() {
		messageType = api.MessageTypeAI
	}
	return api.MapMessage(api.Message{
		ID:             e.ID,
		MessageType:    messageType,
		Result:         e.Result,
		ConversationID: e.ConversationID,
		HasErrors:      e.HasErrors,
	})
}

// StreamChunk is an incremental token frame for a message being generated.
type StreamChunk struct {
	Type      string `json:"type"`
	MessageID api.ID `json:"message_id"`
	Content   string `json:"content"`
	Finished  bool   `json:"finished"`
}

// Callbacks receive channel events. Every field is optional.
type Callbacks struct {
	OnMessage      func(MessageEvent)
	OnStreamChunk  func(StreamChunk)
	OnConnected    func()
	OnDisconnected func()
	OnRejected     func()
	// OnOverflow fires when frames were dropped because the callbacks could
	// not keep up.
	OnOverflow func()
}

// ChatChannel subscribes to conversations on a shared consumer.
type ChatChannel struct {
	consumer *Consumer
	logger   *slog.Logger
}

// NewChatChannel creates a channel binding on consumer.
func NewChatChannel(consumer *Consumer, logger *slog.Logger) *ChatChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatChannel{
		consumer: consumer,
		logger:   logger.With("component", "chat_channel"),
	}
}

// Handle is one live conversation subscription.
type Handle struct {
	sub    *Subscription
	closed atomic.Bool
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Unsubscribe stops delivery and releases the subscription. Safe to call
// repeatedly and after the transport is gone. A callback already running may
// finish, but no new callback starts afterwards.
func (h *Handle) Unsubscribe() {
	if h.closed.CompareAndSwap(false, true) {
		h.sub.Unsubscribe()
	}
}

// Done is closed once the dispatch goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns ErrSubscriptionRejected after the server refused the
// subscription, nil otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Subscribe opens a subscription to conversationID. Confirmation arrives
// asynchronously through OnConnected or OnRejected. Cancelling ctx
// unsubscribes.
func (c *ChatChannel) Subscribe(ctx context.Context, conversationID string, cb Callbacks) (*Handle, error) {
	if conversationID == "" {
		return nil, errors.New("subscribe: empty conversation id")
	}

	sub, err := c.consumer.Subscribe(ctx, Identifier(ChannelName, conversationID))
	if err != nil {
		return nil, err
	}

	h := &Handle{sub: sub, done: make(chan struct{})}
	logger := c.logger.With("conversation_id", conversationID)
	logger.Debug("subscribing")

	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				h.Unsubscribe()
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if h.closed.Load() {
					continue
				}
				c.dispatch(logger, h, ev, cb)
			}
		}
	}()

	return h, nil
}

func (c *ChatChannel) dispatch(logger *slog.Logger, h *Handle, ev Event, cb Callbacks) {
	switch ev.Kind {
	case EventConnected:
		logger.Debug("connected")
		if cb.OnConnected != nil {
			cb.OnConnected()
		}

	case EventDisconnected:
		logger.Debug("disconnected")
		if cb.OnDisconnected != nil {
			cb.OnDisconnected()
		}

	case EventRejected:
		logger.Warn("subscription rejected")
		h.mu.Lock()
		h.err = ErrSubscriptionRejected
		h.mu.Unlock()
		h.closed.Store(true)
		if cb.OnRejected != nil {
			cb.OnRejected()
		}

	case EventReceived:
		c.dispatchData(logger, ev.Data, cb)

	case EventOverflow:
		logger.Warn("frames dropped for slow subscriber")
		if cb.OnOverflow != nil {
			cb.OnOverflow()
		}
	}
}

func (c *ChatChannel) dispatchData(logger *slog.Logger, data json.RawMessage, cb Callbacks) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Warn("dropping undecodable payload", "error", err)
		return
	}

	if envelope.Type == streamType {
		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			logger.Warn("dropping malformed stream chunk", "error", err)
			return
		}
		if cb.OnStreamChunk != nil {
			cb.OnStreamChunk(chunk)
		}
		return
	}

	var msg MessageEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("dropping malformed message", "error", err)
		return
	}
	if cb.OnMessage != nil {
		cb.OnMessage(msg)
	}
}
