// ABOUTME: Tests for the character reveal loop using a manual scheduler
// ABOUTME: Covers pacing, snapping rules, disabling, close and rune handling

package reveal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delay = 10 * time.Millisecond

func newTestRevealer(t *testing.T, initial string) (*Revealer, *ManualScheduler) {
	t.Helper()
	sched := NewManualScheduler()
	r := New(initial, WithScheduler(sched), WithCharDelay(delay))
	t.Cleanup(r.Close)
	return r, sched
}

func drain(r *Revealer) string {
	var last string
	for {
		select {
		case s := <-r.Updates():
			last = s
		default:
			return last
		}
	}
}

func TestRevealer_StartsWithInitialText(t *testing.T) {
	r, sched := newTestRevealer(t, "Hallo")
	assert.Equal(t, "Hallo", r.Displayed())
	assert.False(t, r.Animating())
	assert.Equal(t, 0, sched.Pending())
}

func TestRevealer_RevealsOneRunePerTick(t *testing.T) {
	r, sched := newTestRevealer(t, "")

	r.SetTarget("Hello")
	assert.Equal(t, "", r.Displayed())
	assert.True(t, r.Animating())

	sched.Advance(delay)
	assert.Equal(t, "H", r.Displayed())

	sched.Advance(2 * delay)
	assert.Equal(t, "Hel", r.Displayed())

	sched.Advance(time.Second)
	assert.Equal(t, "Hello", r.Displayed())
	assert.False(t, r.Animating())
	assert.Equal(t, 0, sched.Pending())
	assert.Equal(t, "Hello", drain(r))
}

func TestRevealer_GrowthContinuesRunningAnimation(t *testing.T) {
	r, sched := newTestRevealer(t, "")

	r.SetTarget("Hel")
	sched.Advance(2 * delay)
	require.Equal(t, "He", r.Displayed())

	r.SetTarget("Hello")
	assert.Equal(t, 1, sched.Pending(), "no second loop")

	sched.Advance(3 * delay)
	assert.Equal(t, "Hello", r.Displayed())
}

func TestRevealer_GrowthAfterFinishRestarts(t *testing.T) {
	r, sched := newTestRevealer(t, "Hi")

	r.SetTarget("Hi there")
	sched.Advance(delay)
	assert.Equal(t, "Hi ", r.Displayed())
	sched.Advance(10 * delay)
	assert.Equal(t, "Hi there", r.Displayed())
}

func TestRevealer_SnapsOnShrink(t *testing.T) {
	r, sched := newTestRevealer(t, "")

	r.SetTarget("Hello world")
	sched.Advance(5 * delay)
	require.Equal(t, "Hello", r.Displayed())

	r.SetTarget("Hey")
	assert.Equal(t, "Hey", r.Displayed())
	assert.False(t, r.Animating())
	assert.Equal(t, 0, sched.Pending())
	assert.Equal(t, "Hey", drain(r))
}

func TestRevealer_SnapsWhenTargetDiverges(t *testing.T) {
	r, sched := newTestRevealer(t, "")

	r.SetTarget("Hello")
	sched.Advance(3 * delay)
	require.Equal(t, "Hel", r.Displayed())

	r.SetTarget("Goodbye everyone")
	assert.Equal(t, "Goodbye everyone", r.Displayed())
}

func TestRevealer_ResetToEmpty(t *testing.T) {
	r, sched := newTestRevealer(t, "")
	r.SetTarget("abc")
	sched.Advance(delay)

	r.SetTarget("")
	assert.Equal(t, "", r.Displayed())
	assert.Equal(t, 0, sched.Pending())
}

func TestRevealer_Disabled(t *testing.T) {
	sched := NewManualScheduler()
	r := New("", WithScheduler(sched), WithEnabled(false))
	defer r.Close()

	r.SetTarget("Hello")
	assert.Equal(t, "Hello", r.Displayed())
	assert.Equal(t, 0, sched.Pending())
}

func TestRevealer_DisableMidAnimationSnaps(t *testing.T) {
	r, sched := newTestRevealer(t, "")

	r.SetTarget("Hello")
	sched.Advance(delay)
	require.Equal(t, "H", r.Displayed())

	r.SetEnabled(false)
	assert.Equal(t, "Hello", r.Displayed())
	assert.False(t, r.Animating())
	assert.Equal(t, 0, sched.Pending())

	r.SetEnabled(true)
	r.SetTarget("Hello!")
	sched.Advance(delay)
	assert.Equal(t, "Hello!", r.Displayed())
}

func TestRevealer_CountsRunesNotBytes(t *testing.T) {
	r, sched := newTestRevealer(t, "")

	r.SetTarget("Grüße 👋")
	sched.Advance(3 * delay)
	assert.Equal(t, "Grü", r.Displayed())

	sched.Advance(10 * delay)
	assert.Equal(t, "Grüße 👋", r.Displayed())
}

func TestRevealer_CloseStopsTimer(t *testing.T) {
	sched := NewManualScheduler()
	r := New("", WithScheduler(sched), WithCharDelay(delay))

	r.SetTarget("Hello")
	sched.Advance(delay)
	r.Close()
	r.Close()

	assert.Equal(t, 0, sched.Pending())
	sched.Advance(time.Second)
	assert.Equal(t, "H", r.Displayed())

	r.SetTarget("ignored")
	assert.Equal(t, "H", r.Displayed())

	for range r.Updates() {
	}
}

func TestRevealer_StaleStepIsIgnored(t *testing.T) {
	r, sched := newTestRevealer(t, "")
	r.SetTarget("abc")
	sched.Advance(delay)
	require.Equal(t, "a", r.Displayed())

	// Capture the pending step as if its timer fired right before a snap.
	r.mu.Lock()
	staleSeq := r.seq
	r.mu.Unlock()

	r.SetTarget("x")
	r.SetTarget("xyz")
	r.step(staleSeq)

	assert.Equal(t, "x", r.Displayed())
	sched.Advance(delay)
	assert.Equal(t, "xy", r.Displayed())
}

func TestRevealer_UpdatesKeepLatest(t *testing.T) {
	r, sched := newTestRevealer(t, "")
	r.SetTarget("abcd")
	sched.Advance(4 * delay)

	select {
	case s := <-r.Updates():
		assert.Equal(t, "abcd", s)
	default:
		t.Fatal("expected an update")
	}
}

func TestRealScheduler(t *testing.T) {
	r := New("", WithCharDelay(time.Millisecond))
	defer r.Close()

	r.SetTarget("abc")
	require.Eventually(t, func() bool { return r.Displayed() == "abc" }, time.Second, time.Millisecond)
}

func TestManualScheduler_StopAndOrder(t *testing.T) {
	sched := NewManualScheduler()
	var got []int

	sched.AfterFunc(20*time.Millisecond, func() { got = append(got, 2) })
	stopped := sched.AfterFunc(15*time.Millisecond, func() { got = append(got, 99) })
	sched.AfterFunc(10*time.Millisecond, func() {
		got = append(got, 1)
		sched.AfterFunc(5*time.Millisecond, func() { got = append(got, 15) })
	})

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	sched.Advance(30 * time.Millisecond)
	assert.Equal(t, []int{1, 15, 2}, got)
	assert.Equal(t, 0, sched.Pending())
}
