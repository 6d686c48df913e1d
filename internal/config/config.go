// ABOUTME: Configuration loading and parsing for the chat widget
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Endpoint defaults. Script-tag auto-init historically pointed at the
// marketing host, explicit configuration at the app host.
const (
	DefaultAPIEndpoint   = "https://app.hermine.ai"
	AttributeAPIEndpoint = "https://hermine.ai"
)

// Sync timing defaults.
const (
	DefaultPollInterval   = time.Second
	DefaultPollAttempts   = 30
	DefaultStaleThreshold = 6 * time.Second
	DefaultCharDelay      = 15 * time.Millisecond
)

// Positions accepted by the widget.
const (
	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
)

// Config represents the complete chat widget configuration
type Config struct {
	Widget  Widget        `yaml:"widget" toml:"widget"`
	Sync    SyncConfig    `yaml:"sync" toml:"sync"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// Widget is the developer-facing widget configuration.
type Widget struct {
	AccountID   string `yaml:"account_id" toml:"account_id"`
	AgentSlug   string `yaml:"agent_slug" toml:"agent_slug"`
	APIEndpoint string `yaml:"api_endpoint" toml:"api_endpoint"`
	// Target is the deprecated name of APIEndpoint.
	Target string `yaml:"target" toml:"target"`
	// Token is an optional bearer token for authenticated deployments.
	Token string `yaml:"token" toml:"token"`

	PrimaryColor string `yaml:"primary_color" toml:"primary_color"`

	ChatTitle            string `yaml:"chat_title" toml:"chat_title"`
	ChatTitleColor       string `yaml:"chat_title_color" toml:"chat_title_color"`
	ChatSubTitle         string `yaml:"chat_sub_title" toml:"chat_sub_title"`
	ChatSubTitleColor    string `yaml:"chat_sub_title_color" toml:"chat_sub_title_color"`
	ChatDescription      string `yaml:"chat_description" toml:"chat_description"`
	ChatDescriptionColor string `yaml:"chat_description_color" toml:"chat_description_color"`
	ChatBackgroundColor  string `yaml:"chat_background_color" toml:"chat_background_color"`

	FontFamily string `yaml:"font_family" toml:"font_family"`

	FloatingButtonBackgroundColor string `yaml:"floating_button_background_color" toml:"floating_button_background_color"`
	FloatingButtonIconColor       string `yaml:"floating_button_icon_color" toml:"floating_button_icon_color"`
	FloatingButtonBorderColor     string `yaml:"floating_button_border_color" toml:"floating_button_border_color"`
	FloatingButtonWidth           string `yaml:"floating_button_width" toml:"floating_button_width"`
	FloatingButtonHeight          string `yaml:"floating_button_height" toml:"floating_button_height"`
	FloatingButtonIcon            string `yaml:"floating_button_icon" toml:"floating_button_icon"` // image or chat

	AIMessageBackgroundColor string `yaml:"ai_message_background_color" toml:"ai_message_background_color"`
	AIMessageTextColor       string `yaml:"ai_message_text_color" toml:"ai_message_text_color"`
	MessageBackgroundColor   string `yaml:"message_background_color" toml:"message_background_color"`
	MessageTextColor         string `yaml:"message_text_color" toml:"message_text_color"`
	ButtonBackgroundColor    string `yaml:"button_background_color" toml:"button_background_color"`
	ButtonColor              string `yaml:"button_color" toml:"button_color"`

	Position string `yaml:"position" toml:"position"`
	// Location is the deprecated name of Position; "bottom" means bottom-right.
	Location      string  `yaml:"location" toml:"location"`
	Spacing       Spacing `yaml:"spacing" toml:"spacing"`
	SpacingRight  string  `yaml:"spacing_right" toml:"spacing_right"`
	SpacingBottom string  `yaml:"spacing_bottom" toml:"spacing_bottom"`

	FullScreenEnabled    bool   `yaml:"full_screen_enabled" toml:"full_screen_enabled"`
	Shadow               string `yaml:"shadow" toml:"shadow"` // none, small, medium, large
	TextInputPlaceholder string `yaml:"text_input_placeholder" toml:"text_input_placeholder"`
	UseCustomLogo        bool   `yaml:"use_custom_logo" toml:"use_custom_logo"`
	// ShowConversationManagement defaults to true when unset.
	ShowConversationManagement *bool `yaml:"show_conversation_management" toml:"show_conversation_management"`
}

// Spacing holds CSS distances from the viewport edges.
type Spacing struct {
	Bottom string `yaml:"bottom" toml:"bottom"`
	Right  string `yaml:"right" toml:"right"`
	Left   string `yaml:"left" toml:"left"`
}

// Endpoint returns the effective API base URL: APIEndpoint, then the legacy
// Target, then DefaultAPIEndpoint.
func (w Widget) Endpoint() string {
	switch {
	case w.APIEndpoint != "":
		return strings.TrimRight(w.APIEndpoint, "/")
	case w.Target != "":
		return strings.TrimRight(w.Target, "/")
	default:
		return DefaultAPIEndpoint
	}
}

// SyncConfig holds conversation synchronization tuning
type SyncConfig struct {
	PollInterval   time.Duration `yaml:"-" toml:"-"`
	StaleThreshold time.Duration `yaml:"-" toml:"-"`
	CharDelay      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw   string `yaml:"poll_interval" toml:"poll_interval"`
	StaleThresholdRaw string `yaml:"stale_threshold" toml:"stale_threshold"`
	CharDelayRaw      string `yaml:"char_delay" toml:"char_delay"`

	PollAttempts      int     `yaml:"poll_attempts" toml:"poll_attempts"`
	AccumulateChunks  bool    `yaml:"accumulate_chunks" toml:"accumulate_chunks"`
	DisablePush       bool    `yaml:"disable_push" toml:"disable_push"`
	DisableAnimation  bool    `yaml:"disable_animation" toml:"disable_animation"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	Path string `yaml:"path" toml:"path"`
}

// ValidationError names the configuration field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Defaults returns a configuration with every optional field filled in.
func Defaults() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued sync and logging settings and resolves the
// API endpoint.
func (c *Config) ApplyDefaults() {
	c.Widget.APIEndpoint = c.Widget.Endpoint()

	if c.Sync.PollInterval <= 0 {
		c.Sync.PollInterval = DefaultPollInterval
	}
	if c.Sync.PollAttempts <= 0 {
		c.Sync.PollAttempts = DefaultPollAttempts
	}
	if c.Sync.StaleThreshold <= 0 {
		c.Sync.StaleThreshold = DefaultStaleThreshold
	}
	if c.Sync.CharDelay <= 0 {
		c.Sync.CharDelay = DefaultCharDelay
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns a *ValidationError describing the first failure encountered.
func (c *Config) Validate() error {
	if err := c.Widget.Validate(); err != nil {
		return err
	}

	if c.Sync.PollAttempts < 0 {
		return &ValidationError{Field: "sync.poll_attempts", Reason: "must not be negative"}
	}
	if c.Sync.RequestsPerSecond < 0 {
		return &ValidationError{Field: "sync.requests_per_second", Reason: "must not be negative"}
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return &ValidationError{Field: "logging.format", Reason: fmt.Sprintf("must be text or json, got %q", c.Logging.Format)}
	}

	return nil
}

// Validate checks the fields the widget cannot mount without, and the
// enumerated styling options.
func (w Widget) Validate() error {
	if w.AccountID == "" {
		return &ValidationError{Field: "widget.account_id", Reason: "is required"}
	}
	if w.AgentSlug == "" {
		return &ValidationError{Field: "widget.agent_slug", Reason: "is required"}
	}

	switch w.Position {
	case "", PositionBottomRight, PositionBottomLeft:
	default:
		return &ValidationError{Field: "widget.position", Reason: fmt.Sprintf("unknown position %q", w.Position)}
	}
	switch w.Location {
	case "", "bottom", PositionBottomRight, PositionBottomLeft:
	default:
		return &ValidationError{Field: "widget.location", Reason: fmt.Sprintf("unknown location %q", w.Location)}
	}
	switch w.Shadow {
	case "", "none", "small", "medium", "large":
	default:
		return &ValidationError{Field: "widget.shadow", Reason: fmt.Sprintf("unknown shadow preset %q", w.Shadow)}
	}
	switch w.FloatingButtonIcon {
	case "", "image", "chat":
	default:
		return &ValidationError{Field: "widget.floating_button_icon", Reason: fmt.Sprintf("must be image or chat, got %q", w.FloatingButtonIcon)}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", cfg.Sync.PollIntervalRaw, &cfg.Sync.PollInterval},
		{"stale_threshold", cfg.Sync.StaleThresholdRaw, &cfg.Sync.StaleThreshold},
		{"char_delay", cfg.Sync.CharDelayRaw, &cfg.Sync.CharDelay},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
