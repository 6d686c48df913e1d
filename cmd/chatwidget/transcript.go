// ABOUTME: Prints engine snapshots as a terminal transcript
// ABOUTME: Assistant replies are revealed character by character as they stream in

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/2389/chatwidget/internal/conversation"
	"github.com/2389/chatwidget/internal/metrics"
	"github.com/2389/chatwidget/internal/render"
	"github.com/2389/chatwidget/internal/reveal"
	"github.com/2389/chatwidget/internal/state"
)

// transcript tracks which messages have been written and animates the one
// currently arriving.
type transcript struct {
	out         io.Writer
	plain       *render.Renderer
	styled      *render.Renderer
	revealOpts  []reveal.Option
	metrics     *metrics.Recorder
	agentLabel  *color.Color
	userLabel   *color.Color
	dim         *color.Color
	errColor    *color.Color
	agentPrefix string

	mu        sync.Mutex
	printed   map[string]bool
	active    *reveal.Revealer
	activeID  string
	final     bool
	written   string
	lastErr   string
	connected *bool
}

func newTranscript(out io.Writer, accent string, rec *metrics.Recorder, revealOpts ...reveal.Option) *transcript {
	agentLabel := color.New(color.FgCyan, color.Bold)
	if rgb, ok := hexToRGB(accent); ok {
		agentLabel = color.RGB(rgb[0], rgb[1], rgb[2]).Add(color.Bold)
	}

	return &transcript{
		out:         out,
		plain:       render.New(),
		styled:      render.New(render.WithColor(!color.NoColor), render.WithAccent(accent)),
		revealOpts:  revealOpts,
		metrics:     rec,
		agentLabel:  agentLabel,
		userLabel:   color.New(color.FgGreen, color.Bold),
		dim:         color.New(color.FgHiBlack),
		errColor:    color.New(color.FgRed),
		agentPrefix: "agent › ",
		printed:     make(map[string]bool),
	}
}

// run prints snapshots until the channel closes or ctx ends.
func (t *transcript) run(ctx context.Context, snaps <-chan state.Snapshot) {
	defer t.close()

	for {
		var updates <-chan string
		t.mu.Lock()
		if t.active != nil {
			updates = t.active.Updates()
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			t.handleSnapshot(snap)
		case text, ok := <-updates:
			if ok {
				t.handleReveal(text)
			}
		}
	}
}

func (t *transcript) handleSnapshot(snap state.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Session.ConversationID != "" && (t.connected == nil || *t.connected != snap.Connection.IsConnected) {
		connected := snap.Connection.IsConnected
		t.connected = &connected
		if connected {
			t.dim.Fprintln(t.out, "● live")
		} else {
			t.dim.Fprintln(t.out, "○ offline, replies will be polled")
		}
	}

	if msg := snap.Connection.Error; msg != t.lastErr {
		t.lastErr = msg
		if msg != "" {
			t.errColor.Fprintf(t.out, "! %s\n", msg)
		}
	}

	for _, m := range snap.Session.Messages {
		if t.printed[m.ID] {
			continue
		}
		if m.Role == state.RoleUser {
			// Typed by the local user, already on screen.
			t.printed[m.ID] = true
			continue
		}
		if m.Content == "" || m.Content == conversation.PendingPlaceholder {
			continue
		}

		streaming := snap.Streaming.IsStreaming && snap.Streaming.StreamingMessageID == m.ID
		if t.activeID != m.ID {
			t.finishLocked()
			t.startLocked(m.ID)
		}
		t.active.SetTarget(t.plain.Terminal(m.Content))
		t.final = !streaming
		t.maybeFinishLocked()
	}
}

func (t *transcript) handleReveal(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return
	}
	t.writeLocked(text)
	t.maybeFinishLocked()
}

func (t *transcript) startLocked(id string) {
	t.active = reveal.New("", t.revealOpts...)
	t.activeID = id
	t.final = false
	t.written = ""
	t.agentLabel.Fprint(t.out, t.agentPrefix)
}

// writeLocked writes the part of text not yet on screen. A reply that was
// rewritten rather than extended is printed again on a fresh line.
func (t *transcript) writeLocked(text string) {
	if strings.HasPrefix(text, t.written) {
		fmt.Fprint(t.out, text[len(t.written):])
	} else {
		fmt.Fprint(t.out, "\n")
		t.agentLabel.Fprint(t.out, t.agentPrefix)
		fmt.Fprint(t.out, text)
	}
	t.written = text
}

func (t *transcript) maybeFinishLocked() {
	if t.active == nil || !t.final || t.active.Animating() {
		return
	}
	t.finishLocked()
}

// finishLocked writes whatever is left of the active reply and ends its line.
func (t *transcript) finishLocked() {
	if t.active == nil {
		return
	}

	target := t.active.Target()
	if t.written != target {
		t.writeLocked(target)
	}
	fmt.Fprint(t.out, "\n\n")
	t.metrics.Revealed(utf8.RuneCountInString(target))

	t.active.Close()
	t.printed[t.activeID] = true
	t.active = nil
	t.activeID = ""
	t.final = false
	t.written = ""
}

func (t *transcript) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishLocked()
}

// printHistory writes the whole conversation with markdown styling.
func (t *transcript) printHistory(snap state.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(snap.Session.Messages) == 0 {
		fmt.Fprintln(t.out, "No messages yet")
		return
	}

	t.dim.Fprintln(t.out, strings.Repeat("-", 60))
	for _, m := range snap.Session.Messages {
		label, prefix := t.agentLabel, t.agentPrefix
		if m.Role == state.RoleUser {
			label, prefix = t.userLabel, "you   › "
		}
		label.Fprint(t.out, prefix)
		fmt.Fprintln(t.out, t.styled.Terminal(m.Content))
		if m.Role == state.RoleAssistant && !m.IsWelcome {
			t.dim.Fprintf(t.out, "        id %s\n", m.ID)
		}
	}
	t.dim.Fprintln(t.out, strings.Repeat("-", 60))
}

func hexToRGB(s string) ([3]int, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return [3]int{}, false
	}
	var rgb [3]int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rgb[0], &rgb[1], &rgb[2]); err != nil {
		return [3]int{}, false
	}
	return rgb, true
}
