// Package auth handles the optional bearer token for authenticated widget
// deployments.
//
// # Token Discovery
//
// Discover looks for a token in this order:
//
//  1. The CHATWIDGET_TOKEN environment variable
//  2. $XDG_CONFIG_HOME/chatwidget/token (default ~/.config/chatwidget/token)
//
// # Expiry Check
//
// The widget never holds the signing key. Check decodes JWT claims without
// verifying the signature and rejects tokens whose exp has passed with
// ErrExpiredToken before any request is sent. Tokens that are not JWTs are treated as opaque
// API keys and pass unchecked.
package auth
