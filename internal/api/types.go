// ABOUTME: Wire types for the chat backend REST API
// ABOUTME: Includes mapping from backend messages to state.Message

package api

import (
	"time"

	"github.com/2389/chatwidget/internal/state"
)

// Message types used by the backend.
const (
	MessageTypeAI   = "ai"
	MessageTypeUser = "user"
)

// Config identifies the account and agent the widget talks to.
type Config struct {
	AccountID   string
	AgentSlug   string
	APIEndpoint string
}

// CreateConversationResponse is returned by GET /c/{account}/{agent}/new.
type CreateConversationResponse struct {
	ConversationID ID `json:"conversation_id"`
}

// Message is a raw message as stored by the backend.
type Message struct {
	ID               ID     `json:"id"`
	MessageType      string `json:"message_type"`
	Result           string `json:"result"`
	IsWelcomeMessage bool   `json:"is_welcome_message,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	ConversationID   ID     `json:"conversation_id,omitempty"`
	HasErrors        bool   `json:"has_errors,omitempty"`
}

// ConversationResponse is the conversation snapshot.
type ConversationResponse struct {
	ID                 ID        `json:"id"`
	Messages           []Message `json:"messages"`
	Prompts            []string  `json:"prompts,omitempty"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	InputPlaceholderDe string    `json:"inputPlaceholderDe,omitempty"`
	InputPlaceholderEn string    `json:"inputPlaceholderEn,omitempty"`
	PrivacyDisclaimer  string    `json:"privacyDisclaimer,omitempty"`
}

// SendMessageResponse acknowledges a posted message.
type SendMessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// FeedbackResponse acknowledges submitted feedback.
type FeedbackResponse struct {
	Message string `json:"message"`
}

// Theme is the account branding.
type Theme struct {
	AIIcon     string `json:"ai_icon,omitempty"`
	Logo       string `json:"logo,omitempty"`
	LogoSmall  string `json:"logo_small,omitempty"`
	Primary500 string `json:"primary_500,omitempty"`
	Primary900 string `json:"primary_900,omitempty"`
	Name       string `json:"name,omitempty"`
}

type messageEnvelope struct {
	Message any `json:"message"`
}

type resultBody struct {
	Result string `json:"result"`
}

type feedbackBody struct {
	Feedback string `json:"feedback"`
}

// MapMessage converts a backend message into the state representation.
func MapMessage(m Message) state.Message {
	role := state.RoleUser
	if m.MessageType == MessageTypeAI {
		role = state.RoleAssistant
	}

	var created time.Time
	if m.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
			created = t
		}
	}

	return state.Message{
		ID:        string(m.ID),
		Role:      role,
		Content:   m.Result,
		IsWelcome: m.IsWelcomeMessage,
		HasErrors: m.HasErrors,
		CreatedAt: created,
	}
}

// MapMessages converts a slice of backend messages.
func MapMessages(msgs []Message) []state.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]state.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MapMessage(m))
	}
	return out
}

// Hydration converts a conversation snapshot into store hydration data.
// The German placeholder wins over the English one, matching the backend default.
func (r *ConversationResponse) Hydration() state.Hydration {
	placeholder := r.InputPlaceholderDe
	if placeholder == "" {
		placeholder = r.InputPlaceholderEn
	}
	return state.Hydration{
		Messages:         MapMessages(r.Messages),
		Prompts:          r.Prompts,
		ImageURL:         r.ImageURL,
		InputPlaceholder: placeholder,
	}
}

// LastAIMessage returns the most recent assistant message, if any.
func (r *ConversationResponse) LastAIMessage() (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].MessageType == MessageTypeAI {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}
