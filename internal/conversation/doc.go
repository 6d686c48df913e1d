// Package conversation keeps one chat session in sync with the backend.
//
// # Overview
//
// The Engine sits between the REST client, the push channel and the state
// store. It owns the only writable store and exposes read-only snapshots:
//
//	client := api.NewClient(cfg)
//	channel := cable.NewChatChannel(consumer, logger)
//	engine := conversation.NewEngine(client,
//		conversation.WithPusher(conversation.NewCablePusher(channel)),
//	)
//	defer engine.Close()
//
//	if err := engine.Bootstrap(ctx); err != nil { ... }
//	updates := engine.Subscribe(ctx)
//
// # Lifecycle
//
//  1. Bootstrap creates a conversation, hydrates the store from a fetch and
//     opens the push subscription
//  2. Send appends an optimistic user message and posts it
//  3. Push events upsert assistant messages by id until one is finished
//  4. Reset discards everything; Restart resets and bootstraps again
//
// Only one bootstrap runs at a time. Sends are rejected with ErrSendRejected
// when the content is blank, no conversation exists, or an answer is still
// pending.
//
// # Push Events
//
// Message events are applied with upsert-by-id semantics. The engine drops:
//
//   - the pending placeholder "..." unless the backend flagged an error
//   - any event for a message already seen finished
//   - non-final frames carrying an older prefix of the stored content
//   - exact replays of a frame already applied
//
// Stream chunks only toggle the streaming indicator unless
// WithAccumulateChunks is set.
//
// # Polling Fallback
//
// When the push channel is not confirmed at send time, or drops while an
// answer is pending, the engine polls the conversation every interval until
// an assistant reply follows the user's last message. Exhausting the attempt
// budget sets ErrMsgTimeout; a failed fetch sets ErrMsgLoad.
//
// # Generations
//
// Every Reset bumps a generation counter. Callbacks and in-flight requests
// capture the generation they started in, and their results are discarded
// once it is stale, so nothing from an abandoned conversation leaks into
// the next one.
package conversation
