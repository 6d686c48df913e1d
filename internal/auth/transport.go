// ABOUTME: HTTP transport that attaches the bearer token to outgoing requests
// ABOUTME: Refuses to send once a JWT's exp has passed so callers see ErrExpiredToken

package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Transport adds "Authorization: Bearer <Token>" to every request. Requests
// made with an expired JWT fail with ErrExpiredToken without reaching the
// network.
type Transport struct {
	Base  http.RoundTripper
	Token string
	// Now defaults to time.Now.
	Now func() time.Time
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Token == "" {
		return base.RoundTrip(req)
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	if _, err := Check(t.Token, now()); errors.Is(err, ErrExpiredToken) {
		return nil, err
	}

	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.Token)
	return base.RoundTrip(req)
}

// NewHTTPClient returns a client whose requests carry token. An empty token
// yields a plain client.
func NewHTTPClient(token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Token: token},
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}
