// ABOUTME: Message and session value types for the conversation state store
// ABOUTME: Snapshots are deep copies safe to hand to renderers

package state

import (
	"reflect"
	"time"
)

// DefaultInputPlaceholder is shown in the input until the backend supplies one.
const DefaultInputPlaceholder = "Nachricht eingeben..."

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation. Only Content is mutable after
// insertion.
type Message struct {
	ID        string
	Role      Role
	Content   string
	IsWelcome bool
	HasErrors bool
	CreatedAt time.Time
}

// Session is the conversation-scoped data created by bootstrap.
type Session struct {
	ConversationID   string
	Messages         []Message
	Prompts          []string
	ImageURL         string
	InputPlaceholder string
}

// Loading tracks bootstrap and request progress.
type Loading struct {
	IsInitializing bool
	IsLoading      bool
}

// Streaming tracks the single message currently being streamed.
type Streaming struct {
	IsStreaming        bool
	StreamingMessageID string
}

// Connection reflects push channel health and the user-facing error.
type Connection struct {
	IsConnected bool
	Error       string
}

// Hydration is the data applied in bulk from a conversation fetch.
type Hydration struct {
	Messages         []Message
	Prompts          []string
	ImageURL         string
	InputPlaceholder string
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	Session    Session
	Loading    Loading
	Streaming  Streaming
	Connection Connection
}

// Message returns the message with the given ID, if present.
func (s Snapshot) Message(id string) (Message, bool) {
	for _, m := range s.Session.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Equal reports whether two snapshots hold the same state.
func (s Snapshot) Equal(o Snapshot) bool {
	return reflect.DeepEqual(s, o)
}

func (s Session) clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Prompts = append([]string(nil), s.Prompts...)
	return out
}
