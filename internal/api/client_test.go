// ABOUTME: Tests for the chat backend HTTP client
// ABOUTME: Uses httptest servers to verify paths, headers, bodies and error mapping

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/2389/chatwidget/internal/state"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		AccountID:   "acc-1",
		AgentSlug:   "support",
		APIEndpoint: srv.URL + "/",
	}, opts...)
}

func TestCreateConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/c/acc-1/support/new", r.URL.Path)
		assert.Equal(t, "acc-1", r.Header.Get("X-Account-Id"))
		assert.Equal(t, "support", r.Header.Get("X-Agent-Slug"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"conversation_id":"c1"}`))
	})

	resp, err := c.CreateConversation(t.Context())
	require.NoError(t, err)
	assert.Equal(t, ID("c1"), resp.ConversationID)
}

func TestCreateConversation_EmptyID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.CreateConversation(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetchConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/conversations/c1", r.URL.Path)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		_, _ = w.Write([]byte(`{
			"id": "c1",
			"messages": [
				{"id": "m1", "message_type": "ai", "result": "Hallo", "is_welcome_message": true},
				{"id": "m2", "message_type": "user", "result": "Hi", "created_at": "2026-01-02T03:04:05Z"}
			],
			"prompts": ["Was kannst du?"],
			"imageUrl": "https://example.com/a.png",
			"inputPlaceholderDe": "Frag mich"
		}`))
	})

	resp, err := c.FetchConversation(t.Context(), "c1")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)

	h := resp.Hydration()
	require.Len(t, h.Messages, 2)
	assert.Equal(t, state.RoleAssistant, h.Messages[0].Role)
	assert.True(t, h.Messages[0].IsWelcome)
	assert.Equal(t, state.RoleUser, h.Messages[1].Role)
	assert.Equal(t, 2026, h.Messages[1].CreatedAt.Year())
	assert.Equal(t, []string{"Was kannst du?"}, h.Prompts)
	assert.Equal(t, "https://example.com/a.png", h.ImageURL)
	assert.Equal(t, "Frag mich", h.InputPlaceholder)

	last, ok := resp.LastAIMessage()
	require.True(t, ok)
	assert.Equal(t, ID("m1"), last.ID)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hi", body["message"]["result"])

		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	resp, err := c.SendMessage(t.Context(), "c1", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestSubmitFeedback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/conversations/c1/messages/m2/feedback", r.URL.Path)

		var body map[string]map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "great answer", body["message"]["feedback"])

		_, _ = w.Write([]byte(`{"message":"saved"}`))
	})

	resp, err := c.SubmitFeedback(t.Context(), "c1", "m2", "great answer")
	require.NoError(t, err)
	assert.Equal(t, "saved", resp.Message)
}

func TestFetchTheme(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/account_theme", r.URL.Path)
		_, _ = w.Write([]byte(`{"ai_icon":"icon.png","primary_500":"#112233","name":"Acme"}`))
	})

	theme, err := c.FetchTheme(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "icon.png", theme.AIIcon)
	assert.Equal(t, "#112233", theme.Primary500)
	assert.Equal(t, "Acme", theme.Name)
}

func TestRequestError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	_, err := c.SendMessage(t.Context(), "c1", "Hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
	assert.Equal(t, "send message", reqErr.Op)
	assert.Contains(t, reqErr.Body, "nope")
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c := NewClient(Config{AccountID: "a", AgentSlug: "b", APIEndpoint: endpoint})
	_, err := c.FetchTheme(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	var reqErr *RequestError
	assert.False(t, errors.As(err, &reqErr))
}

func TestWithToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}, WithToken("secret"))

	_, err := c.FetchTheme(t.Context())
	require.NoError(t, err)
}

func TestWithLimiter_ContextCancelled(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	}, WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := c.FetchTheme(t.Context())
	require.NoError(t, err)

	// The bucket is empty now; a short deadline cannot be satisfied
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = c.FetchTheme(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestID_DecodesNumbersAndStrings(t *testing.T) {
	var msgs []Message
	err := json.Unmarshal([]byte(`[{"id": 42, "conversation_id": "c1"}, {"id": "m2", "conversation_id": 7}, {"id": null}]`), &msgs)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, ID("42"), msgs[0].ID)
	assert.Equal(t, ID("c1"), msgs[0].ConversationID)
	assert.Equal(t, ID("m2"), msgs[1].ID)
	assert.Equal(t, ID("7"), msgs[1].ConversationID)
	assert.Empty(t, msgs[2].ID)
}
