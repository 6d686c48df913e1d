// Package dedupe tracks which push events a conversation session has already
// applied.
//
// The orchestrator keeps one Cache per session. It holds two kinds of keys:
// the IDs of assistant messages that reached their finished state (later
// non-finished frames for them are stale and dropped), and fingerprints of
// whole frames so exact replays after a reconnect are ignored. Entries expire
// after a TTL and the cache is bounded in size with oldest-first eviction.
package dedupe
