// ABOUTME: Mutex-guarded conversation state container with upsert-by-id semantics
// ABOUTME: Pure mutations only; every method reports whether state changed

package state

import "sync"

// Store holds the canonical, UI-agnostic state of one conversation.
// All methods are safe for concurrent use. Mutators return true when the
// visible state changed so callers can skip redundant notifications.
type Store struct {
	mu         sync.RWMutex
	session    Session
	loading    Loading
	streaming  Streaming
	connection Connection

	// pending holds IDs of optimistic messages not yet confirmed by the server.
	pending map[string]struct{}
}

// NewStore creates a store in its initial empty state.
func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Session:    s.session.clone(),
		Loading:    s.loading,
		Streaming:  s.streaming,
		Connection: s.connection,
	}
}

// ConversationID returns the active conversation ID, or "" before bootstrap.
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ConversationID
}

// IsLoading reports whether a user message is awaiting its response.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading.IsLoading
}

// IsConnected reports whether the push subscription is confirmed.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection.IsConnected
}

// Content returns the content of message id.
func (s *Store) Content(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.session.Messages[i].Content, true
	}
	return "", false
}

// SetConversationID records the conversation identifier.
func (s *Store) SetConversationID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.ConversationID == id {
		return false
	}
	s.session.ConversationID = id
	return true
}

// Upsert appends msg when its ID is unknown, otherwise replaces the content
// of the existing message and keeps all other fields.
func (s *Store) Upsert(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(msg)
}

func (s *Store) upsertLocked(msg Message) bool {
	if i := s.indexLocked(msg.ID); i >= 0 {
		if s.session.Messages[i].Content == msg.Content {
			return false
		}
		s.session.Messages[i].Content = msg.Content
		return true
	}
	s.session.Messages = append(s.session.Messages, msg)
	return true
}

// PatchContent replaces the content of an existing message. Unknown IDs are
// ignored.
func (s *Store) PatchContent(id, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 || s.session.Messages[i].Content == content {
		return false
	}
	s.session.Messages[i].Content = content
	return true
}

// AppendContent appends delta to an existing message, creating an assistant
// message when the ID is unknown.
func (s *Store) AppendContent(id, delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delta == "" {
		return false
	}
	if i := s.indexLocked(id); i >= 0 {
		s.session.Messages[i].Content += delta
		return true
	}
	s.session.Messages = append(s.session.Messages, Message{
		ID:      id,
		Role:    RoleAssistant,
		Content: delta,
	})
	return true
}

// Remove deletes a message by ID.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.session.Messages = append(s.session.Messages[:i], s.session.Messages[i+1:]...)
	delete(s.pending, id)
	return true
}

// AddLocal appends an optimistic message that the server has not confirmed.
func (s *Store) AddLocal(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.upsertLocked(msg) {
		return false
	}
	s.pending[msg.ID] = struct{}{}
	return true
}

// ConfirmLocal rebinds the oldest pending optimistic message whose content
// equals content to serverID. If serverID is already present, the optimistic
// duplicate is dropped instead. Returns false when no pending message matches.
func (s *Store) ConfirmLocal(content, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmLocked(content, serverID)
}

func (s *Store) confirmLocked(content, serverID string) bool {
	for i, m := range s.session.Messages {
		if _, ok := s.pending[m.ID]; !ok || m.Content != content {
			continue
		}
		delete(s.pending, m.ID)
		if s.indexLocked(serverID) >= 0 {
			s.session.Messages = append(s.session.Messages[:i], s.session.Messages[i+1:]...)
			return true
		}
		s.session.Messages[i].ID = serverID
		return true
	}
	return false
}

// IsPending reports whether id belongs to an unconfirmed optimistic message.
func (s *Store) IsPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

// PendingLocal returns the IDs of unconfirmed optimistic messages in order.
func (s *Store) PendingLocal() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.session.Messages {
		if _, ok := s.pending[m.ID]; ok {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// MergeMessages applies a polled message list with the same upsert rules as
// the push channel. Server user messages confirm matching optimistic echoes
// rather than duplicating them.
func (s *Store) MergeMessages(msgs []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, m := range msgs {
		if m.Role == RoleUser && s.indexLocked(m.ID) < 0 && s.confirmLocked(m.Content, m.ID) {
			changed = true
			continue
		}
		if s.upsertLocked(m) {
			changed = true
		}
	}
	return changed
}

// ApplySnapshot hydrates the session from a conversation fetch. Fields that
// are empty in h leave the current values untouched.
func (s *Store) ApplySnapshot(h Hydration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	if len(h.Messages) > 0 {
		s.session.Messages = append([]Message(nil), h.Messages...)
		s.pending = make(map[string]struct{})
		changed = true
	}
	if len(h.Prompts) > 0 {
		s.session.Prompts = append([]string(nil), h.Prompts...)
		changed = true
	}
	if h.ImageURL != "" && h.ImageURL != s.session.ImageURL {
		s.session.ImageURL = h.ImageURL
		changed = true
	}
	if h.InputPlaceholder != "" && h.InputPlaceholder != s.session.InputPlaceholder {
		s.session.InputPlaceholder = h.InputPlaceholder
		changed = true
	}
	return changed
}

// StartStreaming marks id as the single streaming message. An empty id is
// equivalent to StopStreaming.
func (s *Store) StartStreaming(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return s.stopStreamingLocked()
	}
	if s.streaming.StreamingMessageID == id {
		return false
	}
	s.streaming = Streaming{IsStreaming: true, StreamingMessageID: id}
	return true
}

// StopStreaming clears the streaming state.
func (s *Store) StopStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopStreamingLocked()
}

func (s *Store) stopStreamingLocked() bool {
	if !s.streaming.IsStreaming {
		return false
	}
	s.streaming = Streaming{}
	return true
}

// SetLoading sets the awaiting-response flag.
func (s *Store) SetLoading(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading.IsLoading == v {
		return false
	}
	s.loading.IsLoading = v
	return true
}

// SetInitializing sets the bootstrap flag.
func (s *Store) SetInitializing(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading.IsInitializing == v {
		return false
	}
	s.loading.IsInitializing = v
	return true
}

// SetConnected records push channel subscription confirmation.
func (s *Store) SetConnected(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connection.IsConnected == v {
		return false
	}
	s.connection.IsConnected = v
	return true
}

// SetError sets the user-facing error message.
func (s *Store) SetError(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connection.Error == msg {
		return false
	}
	s.connection.Error = msg
	return true
}

// ClearError dismisses the current error without touching messages.
func (s *Store) ClearError() bool {
	return s.SetError("")
}

// Reset returns the store to its initial empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.session = Session{InputPlaceholder: DefaultInputPlaceholder}
	s.loading = Loading{}
	s.streaming = Streaming{}
	s.connection = Connection{}
	s.pending = make(map[string]struct{})
}

func (s *Store) indexLocked(id string) int {
	for i := range s.session.Messages {
		if s.session.Messages[i].ID == id {
			return i
		}
	}
	return -1
}
