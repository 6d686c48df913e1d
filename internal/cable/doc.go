// Package cable is the push channel: an ActionCable client over WebSocket.
//
// # Overview
//
// A Consumer owns the single WebSocket connection shared by every
// subscription in the process. It is created explicitly and injected into the
// components that need it; nothing in this package is global.
//
//	wsURL, err := cable.URLFromEndpoint("https://app.hermine.ai", "")
//	consumer := cable.NewConsumer(wsURL, cable.WithLogger(logger))
//	defer consumer.DisconnectAll()
//
//	ch := cable.NewChatChannel(consumer, logger)
//	handle, err := ch.Subscribe(ctx, conversationID, cable.Callbacks{
//		OnMessage: func(ev cable.MessageEvent) { ... },
//	})
//	defer handle.Unsubscribe()
//
// # Connection Lifetime
//
// The connection is dialed lazily on the first Acquire (every Subscribe
// acquires) and is reference counted. Dropping to zero references keeps the
// connection unless WithCloseWhenIdle is set; DisconnectAll always tears it
// down and ends every subscription.
//
// While running, the consumer watches server pings. A connection silent for
// longer than the stale threshold is dropped and redialed with capped
// exponential backoff, and all live subscriptions are re-sent after the next
// welcome frame.
//
// # Subscriptions
//
// Each Subscription delivers typed Events on a buffered channel:
//
//   - EventConnected: the server confirmed the subscription
//   - EventDisconnected: the transport dropped (the subscription stays registered)
//   - EventRejected: the server refused the subscription (terminal, channel closes)
//   - EventReceived: a data frame for this identifier
//
// Unsubscribe is idempotent and safe after the transport is gone.
//
// # Chat Channel
//
// ChatChannel binds subscriptions to the ChatbotChannel and splits inbound
// payloads into finalized message events and stream chunks using the
// "type":"stream" discriminant.
package cable
