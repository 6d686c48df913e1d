// ABOUTME: Collaborator interfaces the engine depends on: REST backend and push channel
// ABOUTME: CablePusher adapts the ActionCable chat channel to the Pusher interface

package conversation

import (
	"context"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/cable"
)

// Backend is the subset of the REST client the engine needs.
type Backend interface {
	CreateConversation(ctx context.Context) (*api.CreateConversationResponse, error)
	FetchConversation(ctx context.Context, conversationID string) (*api.ConversationResponse, error)
	SendMessage(ctx context.Context, conversationID, content string) (*api.SendMessageResponse, error)
	SubmitFeedback(ctx context.Context, conversationID, messageID, feedback string) (*api.FeedbackResponse, error)
}

// Subscription is a live push subscription.
type Subscription interface {
	Unsubscribe()
}

// Pusher opens push subscriptions for a conversation.
type Pusher interface {
	Subscribe(ctx context.Context, conversationID string, cb cable.Callbacks) (Subscription, error)
}

// CablePusher delivers push events through a cable.ChatChannel.
type CablePusher struct {
	Channel *cable.ChatChannel
}

// NewCablePusher wraps ch.
func NewCablePusher(ch *cable.ChatChannel) *CablePusher {
	return &CablePusher{Channel: ch}
}

// Subscribe implements Pusher.
func (p *CablePusher) Subscribe(ctx context.Context, conversationID string, cb cable.Callbacks) (Subscription, error) {
	h, err := p.Channel.Subscribe(ctx, conversationID, cb)
	if err != nil {
		return nil, err
	}
	return h, nil
}

var (
	_ Backend = (*api.Client)(nil)
	_ Pusher  = (*CablePusher)(nil)
)
