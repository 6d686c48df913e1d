// Package state holds the canonical conversation state of one widget
// instance.
//
// # Overview
//
// The Store is a pure container: it performs no I/O and knows nothing about
// HTTP or the push channel. The conversation engine is the only writer; the
// presentation layer reads immutable Snapshots.
//
// # Message Identity
//
// Messages are keyed by ID. Upsert is the single write path for server
// messages:
//
//   - absent ID: the message is appended (chronological order)
//   - present ID: only Content is replaced, every other field is preserved
//
// Because of this, the REST snapshot and the push channel can deliver the
// same message in any order, any number of times, without duplicates.
//
// # Optimistic Messages
//
// User messages typed locally are added with AddLocal before the server has
// seen them. They stay "pending" until ConfirmLocal rebinds them to the
// server-assigned ID, or Remove rolls them back after a failed send.
//
// # Streaming
//
// At most one message streams at a time. IsStreaming is true exactly when
// StreamingMessageID is non-empty; StartStreaming and StopStreaming keep the
// two fields in lockstep.
package state
