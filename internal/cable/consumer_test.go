// ABOUTME: Tests for the shared cable consumer against an in-process fake server
// ABOUTME: Covers ref counting, shared identifiers, rejection, redial and teardown

package cable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatwidget/internal/cable/cabletest"
)

const waitFor = 3 * time.Second

func newTestConsumer(t *testing.T, srv *cabletest.Server, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{WithBackoff(10*time.Millisecond, 50*time.Millisecond)}, opts...)
	c := NewConsumer(srv.URL(), opts...)
	t.Cleanup(c.DisconnectAll)
	return c
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed")
		}
	}
}

func countCommands(srv *cabletest.Server, command string) int {
	n := 0
	for _, c := range srv.Commands() {
		if c.Command == command {
			n++
		}
	}
	return n
}

func TestConsumer_SubscribeConfirms(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)

	assert.Equal(t, EventConnected, nextEvent(t, sub).Kind)
	assert.True(t, c.Connected())
	assert.Equal(t, 1, c.Refs())
	assert.True(t, srv.Subscribed("c1"))
}

func TestConsumer_SubscribeRejectsEmptyIdentifier(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)

	_, err := c.Subscribe(t.Context(), "")
	require.Error(t, err)
	assert.Equal(t, 0, c.Refs())
}

func TestConsumer_SharedIdentifierSubscribesOnce(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)
	id := Identifier(ChannelName, "c1")

	a, err := c.Subscribe(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, EventConnected, nextEvent(t, a).Kind)

	// Already confirmed: the second subscription is told immediately
	b, err := c.Subscribe(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, EventConnected, nextEvent(t, b).Kind)

	assert.Equal(t, 1, countCommands(srv, "subscribe"))
	assert.Equal(t, 2, c.Refs())

	srv.Push("c1", map[string]string{"id": "m1"})
	assert.Equal(t, EventReceived, nextEvent(t, a).Kind)
	assert.Equal(t, EventReceived, nextEvent(t, b).Kind)
}

func TestConsumer_UnsubscribeIsIdempotent(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)
	id := Identifier(ChannelName, "c1")

	a, err := c.Subscribe(t.Context(), id)
	require.NoError(t, err)
	b, err := c.Subscribe(t.Context(), id)
	require.NoError(t, err)
	nextEvent(t, a)

	a.Unsubscribe()
	a.Unsubscribe()
	assert.Equal(t, 1, c.Refs())
	assert.Equal(t, 0, countCommands(srv, "unsubscribe"), "identifier still in use")

	b.Unsubscribe()
	assert.Equal(t, 0, c.Refs())
	require.Eventually(t, func() bool { return countCommands(srv, "unsubscribe") == 1 }, waitFor, 10*time.Millisecond)
	waitClosed(t, b)

	// The connection stays open without WithCloseWhenIdle
	assert.True(t, c.Connected())
}

func TestConsumer_Rejection(t *testing.T) {
	srv := cabletest.NewServer(t)
	srv.Reject("c1")
	c := newTestConsumer(t, srv)

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)

	assert.Equal(t, EventRejected, nextEvent(t, sub).Kind)
	waitClosed(t, sub)
	require.Eventually(t, func() bool { return c.Refs() == 0 }, waitFor, 10*time.Millisecond)

	// Unsubscribe after rejection is a no-op
	sub.Unsubscribe()
	assert.Equal(t, 0, c.Refs())
	assert.Equal(t, 1, countCommands(srv, "subscribe"), "rejection is not retried")
}

func TestConsumer_RedialAfterDrop(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)
	require.Equal(t, EventConnected, nextEvent(t, sub).Kind)

	srv.DropConnections()

	assert.Equal(t, EventDisconnected, nextEvent(t, sub).Kind)
	assert.Equal(t, EventConnected, nextEvent(t, sub).Kind, "resubscribed after redial")
	assert.GreaterOrEqual(t, srv.Dials(), 2)
	assert.Equal(t, 2, countCommands(srv, "subscribe"))
}

func TestConsumer_StaleConnectionRedials(t *testing.T) {
	srv := cabletest.NewServer(t, cabletest.WithPingInterval(20*time.Millisecond))
	c := newTestConsumer(t, srv, WithStaleThreshold(150*time.Millisecond))

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)
	require.Equal(t, EventConnected, nextEvent(t, sub).Kind)

	// Pings keep it alive well past the threshold
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, srv.Dials())

	srv.SetSilent(true)
	assert.Equal(t, EventDisconnected, nextEvent(t, sub).Kind)

	srv.SetSilent(false)
	assert.Equal(t, EventConnected, nextEvent(t, sub).Kind)
	assert.GreaterOrEqual(t, srv.Dials(), 2)
}

func TestConsumer_DisconnectWithoutReconnect(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)
	require.Equal(t, EventConnected, nextEvent(t, sub).Kind)

	srv.Disconnect("unauthorized", false)
	assert.Equal(t, EventDisconnected, nextEvent(t, sub).Kind)

	assert.Never(t, func() bool { return srv.Dials() > 1 }, 200*time.Millisecond, 20*time.Millisecond)
	assert.False(t, c.Connected())

	// A new reference dials again
	c.Acquire()
	require.Eventually(t, c.Connected, waitFor, 10*time.Millisecond)
	c.Release()
}

func TestConsumer_DisconnectAll(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv)

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)
	require.Equal(t, EventConnected, nextEvent(t, sub).Kind)

	c.DisconnectAll()
	waitClosed(t, sub)

	assert.Equal(t, 0, c.Refs())
	assert.Equal(t, 0, c.Subscriptions())
	assert.False(t, c.Connected())

	sub.Unsubscribe()
	assert.Equal(t, 0, c.Refs())

	// Usable again afterwards
	again, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)
	assert.Equal(t, EventConnected, nextEvent(t, again).Kind)
}

func TestConsumer_CloseWhenIdle(t *testing.T) {
	srv := cabletest.NewServer(t)
	c := newTestConsumer(t, srv, WithCloseWhenIdle(true))

	sub, err := c.Subscribe(t.Context(), Identifier(ChannelName, "c1"))
	require.NoError(t, err)
	require.Equal(t, EventConnected, nextEvent(t, sub).Kind)

	sub.Unsubscribe()
	require.Eventually(t, func() bool { return !c.Connected() }, waitFor, 10*time.Millisecond)
}

type recordingObserver struct {
	connected    chan struct{}
	disconnected chan error
}

func (o *recordingObserver) Connected() {
	select {
	case o.connected <- struct{}{}:
	default:
	}
}

func (o *recordingObserver) Disconnected(err error) {
	select {
	case o.disconnected <- err:
	default:
	}
}

func (o *recordingObserver) FrameReceived(string) {}

func TestConsumer_Observer(t *testing.T) {
	srv := cabletest.NewServer(t)
	obs := &recordingObserver{connected: make(chan struct{}, 4), disconnected: make(chan error, 4)}
	c := newTestConsumer(t, srv, WithObserver(obs))

	c.Acquire()
	select {
	case <-obs.connected:
	case <-time.After(waitFor):
		t.Fatal("observer not told about connect")
	}

	srv.DropConnections()
	select {
	case err := <-obs.disconnected:
		assert.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("observer not told about disconnect")
	}
}

func TestConsumer_Backoff(t *testing.T) {
	c := NewConsumer("ws://unused", WithBackoff(100*time.Millisecond, time.Second))

	for n, want := range []time.Duration{100, 200, 400, 800, 1000, 1000} {
		got := c.backoff(n)
		base := want * time.Millisecond
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/5)
	}
}
