// ABOUTME: Character-paced reveal of a growing target string
// ABOUTME: One pending timer at most; snaps on shrink, divergence or when disabled

package reveal

import (
	"sync"
	"time"
)

// DefaultCharDelay is the pause between revealed characters.
const DefaultCharDelay = 15 * time.Millisecond

// Option configures a Revealer.
type Option func(*Revealer)

// WithCharDelay sets the per-character delay. Non-positive values keep the
// default.
func WithCharDelay(d time.Duration) Option {
	return func(r *Revealer) {
		if d > 0 {
			r.delay = d
		}
	}
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Revealer) {
		if s != nil {
			r.sched = s
		}
	}
}

// WithEnabled sets whether animation starts enabled. Defaults to true.
func WithEnabled(v bool) Option {
	return func(r *Revealer) { r.enabled = v }
}

// Revealer exposes a displayed prefix of its target that catches up one rune
// per tick. Safe for concurrent use.
type Revealer struct {
	sched Scheduler
	delay time.Duration

	mu      sync.Mutex
	enabled bool
	target  []rune
	shown   int
	timer   Timer
	seq     uint64
	closed  bool
	updates chan string
}

// New creates a revealer that starts fully displaying initial.
func New(initial string, opts ...Option) *Revealer {
	r := &Revealer{
		sched:   RealScheduler(),
		delay:   DefaultCharDelay,
		enabled: true,
		updates: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.target = []rune(initial)
	r.shown = len(r.target)
	return r
}

// Updates delivers the displayed text after every change. The channel keeps
// only the latest value when the reader falls behind, and closes on Close.
func (r *Revealer) Updates() <-chan string {
	return r.updates
}

// Displayed returns the text shown right now.
func (r *Revealer) Displayed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.target[:r.shown])
}

// Target returns the text being revealed.
func (r *Revealer) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.target)
}

// Animating reports whether a reveal step is pending.
func (r *Revealer) Animating() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// SetTarget changes the text to reveal. Growth that extends the displayed
// text continues the running animation; anything else is shown at once.
func (r *Revealer) SetTarget(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	prev := string(r.target[:r.shown])
	next := []rune(text)
	extends := len(next) >= r.shown && string(next[:r.shown]) == prev
	r.target = next

	if !r.enabled || !extends {
		r.snapLocked(prev)
		return
	}
	if r.shown < len(r.target) && r.timer == nil {
		r.scheduleLocked()
	}
}

// SetEnabled toggles animation. Disabling cancels the pending step and shows
// the full target.
func (r *Revealer) SetEnabled(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.enabled == v {
		return
	}
	r.enabled = v
	if !v {
		r.snapLocked(string(r.target[:r.shown]))
		return
	}
	if r.shown < len(r.target) && r.timer == nil {
		r.scheduleLocked()
	}
}

// Close cancels any pending step and closes Updates. Later calls are no-ops.
func (r *Revealer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.stopLocked()
	close(r.updates)
}

func (r *Revealer) scheduleLocked() {
	r.seq++
	seq := r.seq
	r.timer = r.sched.AfterFunc(r.delay, func() { r.step(seq) })
}

// step reveals one more rune. A step whose timer was stopped after it had
// already fired sees a newer seq and does nothing.
func (r *Revealer) step(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || seq != r.seq {
		return
	}
	r.timer = nil
	if !r.enabled || r.shown >= len(r.target) {
		return
	}

	r.shown++
	r.emitLocked()
	if r.shown < len(r.target) {
		r.scheduleLocked()
	}
}

func (r *Revealer) snapLocked(prev string) {
	r.stopLocked()
	r.shown = len(r.target)
	if string(r.target) != prev {
		r.emitLocked()
	}
}

func (r *Revealer) stopLocked() {
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Revealer) emitLocked() {
	text := string(r.target[:r.shown])
	select {
	case r.updates <- text:
	default:
		select {
		case <-r.updates:
		default:
		}
		r.updates <- text
	}
}
