// Package reveal paces the display of streamed assistant text.
//
// Push updates arrive in bursts. A Revealer takes the latest full text as its
// target and exposes a displayed prefix that grows by one character per tick,
// so chunky updates read like token streaming. The displayed text snaps to
// the target when animation is disabled, when the target shrinks, or when the
// target no longer extends what is already shown.
//
// Timing goes through a Scheduler. Production code uses the real clock;
// tests drive a ManualScheduler to advance time deterministically.
package reveal
