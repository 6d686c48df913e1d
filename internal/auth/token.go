// ABOUTME: Bearer token discovery and client-side expiry check for authenticated deployments
// ABOUTME: Reads JWT claims without verifying the signature; the backend remains the verifier

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenEnv is the environment variable consulted first by Discover.
const TokenEnv = "CHATWIDGET_TOKEN"

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Info is what the client can learn from a token without the signing key.
type Info struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
	// Opaque is true for tokens that are not JWTs. Nothing can be checked
	// locally for them.
	Opaque bool
}

// Discover returns the bearer token from CHATWIDGET_TOKEN or the
// chatwidget/token file in the user's config directory, or "" when neither
// is set.
func Discover() string {
	if token := strings.TrimSpace(os.Getenv(TokenEnv)); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "chatwidget", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Inspect decodes the claims of a JWT without verifying its signature.
// Strings that do not look like a JWT are reported as opaque.
func Inspect(tokenString string) (Info, error) {
	if tokenString == "" {
		return Info{}, ErrInvalidToken
	}
	if strings.Count(tokenString, ".") != 2 {
		return Info{Opaque: true}, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var info Info
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Info{}, fmt.Errorf("%w: exp: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Check returns ErrExpiredToken when the token's exp claim is not after now.
// Opaque tokens and JWTs without exp pass.
func Check(tokenString string, now time.Time) (Info, error) {
	info, err := Inspect(tokenString)
	if err != nil {
		return info, err
	}
	if !info.ExpiresAt.IsZero() && !now.Before(info.ExpiresAt) {
		return info, ErrExpiredToken
	}
	return info, nil
}
