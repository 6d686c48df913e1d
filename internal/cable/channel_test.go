// ABOUTME: Tests for the ChatbotChannel binding
// ABOUTME: Verifies payload discrimination, rejection, and silence after unsubscribe

package cable

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/cable/cabletest"
	"github.com/2389/chatwidget/internal/state"
)

type recorder struct {
	messages     chan MessageEvent
	chunks       chan StreamChunk
	connected    chan struct{}
	disconnected chan struct{}
	rejected     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		messages:     make(chan MessageEvent, 16),
		chunks:       make(chan StreamChunk, 16),
		connected:    make(chan struct{}, 4),
		disconnected: make(chan struct{}, 4),
		rejected:     make(chan struct{}, 4),
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnMessage:      func(ev MessageEvent) { r.messages <- ev },
		OnStreamChunk:  func(ch StreamChunk) { r.chunks <- ch },
		OnConnected:    func() { r.connected <- struct{}{} },
		OnDisconnected: func() { r.disconnected <- struct{}{} },
		OnRejected:     func() { r.rejected <- struct{}{} },
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func newTestChannel(t *testing.T) (*ChatChannel, *cabletest.Server, *Consumer) {
	t.Helper()
	srv := cabletest.NewServer(t)
	consumer := newTestConsumer(t, srv)
	return NewChatChannel(consumer, slog.Default()), srv, consumer
}

func TestChatChannel_DispatchesMessagesAndChunks(t *testing.T) {
	ch, srv, _ := newTestChannel(t)
	rec := newRecorder()

	h, err := ch.Subscribe(t.Context(), "c1", rec.callbacks())
	require.NoError(t, err)
	defer h.Unsubscribe()
	receive(t, rec.connected)

	srv.Push("c1", map[string]any{
		"id":              42,
		"result":          "Hello!",
		"message_type":    "ai",
		"conversation_id": "c1",
		"is_finished":     false,
	})
	srv.Push("c1", map[string]any{
		"type":       "stream",
		"message_id": "42",
		"content":    "Hel",
		"finished":   false,
	})

	msg := receive(t, rec.messages)
	assert.Equal(t, api.ID("42"), msg.ID)
	assert.True(t, msg.IsAssistant())
	assert.False(t, msg.Finished())

	converted := msg.Message()
	assert.Equal(t, "42", converted.ID)
	assert.Equal(t, state.RoleAssistant, converted.Role)
	assert.Equal(t, "Hello!", converted.Content)

	chunk := receive(t, rec.chunks)
	assert.Equal(t, api.ID("42"), chunk.MessageID)
	assert.Equal(t, "Hel", chunk.Content)
	assert.False(t, chunk.Finished)
}

func TestChatChannel_MalformedPayloadIsDropped(t *testing.T) {
	ch, srv, _ := newTestChannel(t)
	rec := newRecorder()

	h, err := ch.Subscribe(t.Context(), "c1", rec.callbacks())
	require.NoError(t, err)
	defer h.Unsubscribe()
	receive(t, rec.connected)

	srv.Push("c1", "not an object")
	srv.Push("c1", map[string]any{"id": "m1", "result": "ok", "message_type": "ai"})

	msg := receive(t, rec.messages)
	assert.Equal(t, api.ID("m1"), msg.ID)
}

func TestChatChannel_Rejected(t *testing.T) {
	ch, srv, _ := newTestChannel(t)
	srv.Reject("c1")
	rec := newRecorder()

	h, err := ch.Subscribe(t.Context(), "c1", rec.callbacks())
	require.NoError(t, err)

	receive(t, rec.rejected)
	<-h.Done()
	assert.ErrorIs(t, h.Err(), ErrSubscriptionRejected)

	h.Unsubscribe()
	h.Unsubscribe()
}

func TestChatChannel_NoCallbacksAfterUnsubscribe(t *testing.T) {
	ch, srv, consumer := newTestChannel(t)

	var calls atomic.Int32
	connected := make(chan struct{}, 1)
	h, err := ch.Subscribe(t.Context(), "c1", Callbacks{
		OnConnected: func() { connected <- struct{}{} },
		OnMessage:   func(MessageEvent) { calls.Add(1) },
	})
	require.NoError(t, err)
	receive(t, connected)

	h.Unsubscribe()
	h.Unsubscribe()
	srv.Push("c1", map[string]any{"id": "m1", "result": "late", "message_type": "ai"})

	assert.Never(t, func() bool { return calls.Load() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 0, consumer.Refs())
	<-h.Done()
}

func TestChatChannel_ContextCancelUnsubscribes(t *testing.T) {
	ch, srv, consumer := newTestChannel(t)
	rec := newRecorder()

	ctx, cancel := context.WithCancel(t.Context())
	h, err := ch.Subscribe(ctx, "c1", rec.callbacks())
	require.NoError(t, err)
	receive(t, rec.connected)

	cancel()
	<-h.Done()
	assert.Equal(t, 0, consumer.Refs())
	require.Eventually(t, func() bool { return !srv.Subscribed("c1") }, waitFor, 10*time.Millisecond)
}

func TestChatChannel_DisconnectThenReconnect(t *testing.T) {
	ch, srv, _ := newTestChannel(t)
	rec := newRecorder()

	h, err := ch.Subscribe(t.Context(), "c1", rec.callbacks())
	require.NoError(t, err)
	defer h.Unsubscribe()
	receive(t, rec.connected)

	srv.DropConnections()
	receive(t, rec.disconnected)
	receive(t, rec.connected)
}

func TestChatChannel_EmptyConversationID(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	_, err := ch.Subscribe(t.Context(), "", Callbacks{})
	require.Error(t, err)
}

func TestMessageEvent_Role(t *testing.T) {
	tests := []struct {
		name        string
		messageType string
		want        state.Role
	}{
		{name: "ai", messageType: api.MessageTypeAI, want: state.RoleAssistant},
		{name: "untyped follow-up", messageType: "", want: state.RoleAssistant},
		{name: "user", messageType: api.MessageTypeUser, want: state.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := MessageEvent{ID: "m1", Result: "Hello", MessageType: tt.messageType}
			assert.Equal(t, tt.want == state.RoleAssistant, ev.IsAssistant())
			assert.Equal(t, tt.want, ev.Message().Role)
		})
	}
}

func TestChatChannel_OverflowCallback(t *testing.T) {
	c := NewChatChannel(nil, slog.Default())
	var fired atomic.Int32
	cb := Callbacks{OnOverflow: func() { fired.Add(1) }}

	c.dispatch(c.logger, &Handle{}, Event{Kind: EventOverflow}, cb)
	c.dispatch(c.logger, &Handle{}, Event{Kind: EventOverflow}, Callbacks{})
	assert.Equal(t, int32(1), fired.Load())
}
