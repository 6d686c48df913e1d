// ABOUTME: ActionCable wire protocol frames, commands and identifiers
// ABOUTME: Also derives the cable WebSocket URL from the HTTP API endpoint

package cable

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Server frame types.
const (
	frameWelcome    = "welcome"
	framePing       = "ping"
	frameConfirm    = "confirm_subscription"
	frameReject     = "reject_subscription"
	frameDisconnect = "disconnect"
)

// Client commands.
const (
	commandSubscribe   = "subscribe"
	commandUnsubscribe = "unsubscribe"
)

// Subprotocols offered during the handshake.
var subprotocols = []string{"actioncable-v1-json", "actioncable-unsupported"}

// serverFrame is any frame sent by the cable server.
type serverFrame struct {
	Type       string          `json:"type,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Reconnect  *bool           `json:"reconnect,omitempty"`
}

// command is a client-to-server frame.
type command struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
}

// chatIdentifier is the subscription identifier of the ChatbotChannel. Field
// order matters: the server compares identifiers as strings.
type chatIdentifier struct {
	Channel        string `json:"channel"`
	ConversationID string `json:"conversation_id"`
}

// Identifier encodes channel params into the identifier string ActionCable
// expects.
func Identifier(channel, conversationID string) string {
	data, _ := json.Marshal(chatIdentifier{Channel: channel, ConversationID: conversationID})
	return string(data)
}

// URLFromEndpoint turns an HTTP(S) API endpoint into the cable WebSocket URL.
// A non-empty token is passed as the token query parameter.
func URLFromEndpoint(endpoint, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/cable"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
