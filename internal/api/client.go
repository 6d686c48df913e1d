// ABOUTME: HTTP client for the chat backend: conversations, messages, feedback, theme
// ABOUTME: Stateless single-shot requests with identifying headers and optional rate limiting

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNetwork matches every failed request: non-2xx status or transport error.
var ErrNetwork = errors.New("network error")

// maxErrorBody bounds how much of an error response is kept in RequestError.
const maxErrorBody = 4096

// RequestError is returned for non-2xx responses.
type RequestError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// Unwrap lets errors.Is(err, ErrNetwork) match request errors.
func (e *RequestError) Unwrap() error {
	return ErrNetwork
}

// Client talks to the chat backend on behalf of one account/agent pair.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	token   string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter makes every request wait on l before being sent.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRequestsPerSecond installs a token bucket limiter. rps <= 0 disables limiting.
func WithRequestsPerSecond(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithToken adds an Authorization bearer header to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger. Pass nil for default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIEndpoint = strings.TrimRight(cfg.APIEndpoint, "/")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	return c
}

// Config returns the client's account configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// CreateConversation starts a new conversation for the configured agent.
func (c *Client) CreateConversation(ctx context.Context) (*CreateConversationResponse, error) {
	path := fmt.Sprintf("/c/%s/%s/new", url.PathEscape(c.cfg.AccountID), url.PathEscape(c.cfg.AgentSlug))

	var out CreateConversationResponse
	if err := c.do(ctx, "create conversation", http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	if out.ConversationID == "" {
		return nil, fmt.Errorf("create conversation: %w: empty conversation_id", ErrNetwork)
	}
	return &out, nil
}

// FetchConversation loads the conversation snapshot, bypassing caches.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*ConversationResponse, error) {
	path := "/chat/conversations/" + url.PathEscape(conversationID)

	var out ConversationResponse
	if err := c.do(ctx, "fetch conversation", http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts a user message to the conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*SendMessageResponse, error) {
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	body := messageEnvelope{Message: resultBody{Result: content}}

	var out SendMessageResponse
	if err := c.do(ctx, "send message", http.MethodPost, path, body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFeedback posts free-text feedback for an assistant message.
func (c *Client) SubmitFeedback(ctx context.Context, conversationID, messageID, feedback string) (*FeedbackResponse, error) {
	path := fmt.Sprintf("/chat/conversations/%s/messages/%s/feedback",
		url.PathEscape(conversationID), url.PathEscape(messageID))
	body := messageEnvelope{Message: feedbackBody{Feedback: feedback}}

	var out FeedbackResponse
	if err := c.do(ctx, "submit feedback", http.MethodPost, path, body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchTheme loads the account branding.
func (c *Client) FetchTheme(ctx context.Context) (*Theme, error) {
	var out Theme
	if err := c.do(ctx, "fetch theme", http.MethodGet, "/chat/account_theme", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, noCache bool) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: waiting for rate limiter: %w", op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIEndpoint+path, reader)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: %w: decoding response: %w", op, ErrNetwork, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Agent-Slug", c.cfg.AgentSlug)
	req.Header.Set("X-Account-Id", c.cfg.AccountID)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
