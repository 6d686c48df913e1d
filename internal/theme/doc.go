// Package theme merges developer configuration, the account theme served by
// the backend and built-in defaults into one resolved theme.
//
// Precedence is always developer config, then remote theme, then defaults.
// Only the primary color and the branding assets come from the remote
// theme; every other value is either configured or defaulted.
package theme
