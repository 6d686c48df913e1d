// ABOUTME: Builds a widget configuration from script-tag style data-* attributes
// ABOUTME: Used by the auto-init path, which mounts only when account and agent are present

package config

import "strings"

// FromAttributes builds a configuration from data-* attributes such as
// data-account-id, data-agent-slug, data-api-endpoint, data-primary-color,
// data-title, data-subtitle and data-position. The "data-" prefix is
// optional. ok is false when the account or agent attribute is missing.
func FromAttributes(attrs map[string]string) (cfg Config, ok bool) {
	get := func(name string) string {
		if v, found := attrs["data-"+name]; found {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(attrs[name])
	}

	cfg.Widget = Widget{
		AccountID:    get("account-id"),
		AgentSlug:    get("agent-slug"),
		APIEndpoint:  get("api-endpoint"),
		PrimaryColor: get("primary-color"),
		ChatTitle:    get("title"),
		ChatSubTitle: get("subtitle"),
		Position:     get("position"),
	}
	if cfg.Widget.AccountID == "" || cfg.Widget.AgentSlug == "" {
		return Config{}, false
	}

	if cfg.Widget.APIEndpoint == "" {
		cfg.Widget.APIEndpoint = AttributeAPIEndpoint
	}
	if cfg.Widget.Position == "" {
		cfg.Widget.Position = PositionBottomRight
	}
	cfg.ApplyDefaults()
	return cfg, true
}
