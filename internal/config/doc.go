// Package config handles configuration loading for the chat widget.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// The format follows the file extension: .toml files are decoded as TOML,
// anything else as YAML. The CLI looks for the path given by --config, then
// CHATWIDGET_CONFIG, then ./chatwidget.yaml.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	widget:
//	  token: "${CHATWIDGET_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  poll_interval: "1s"
//	  stale_threshold: "6s"
//	  char_delay: "15ms"
//
// # Configuration Sections
//
// Widget settings (account_id and agent_slug are required):
//
//	widget:
//	  account_id: "acme"
//	  agent_slug: "support"
//	  api_endpoint: "https://app.hermine.ai"
//	  primary_color: "#3366ff"
//	  position: "bottom-left"
//	  shadow: "medium"
//
// The legacy keys target (for api_endpoint) and location (for position) are
// still accepted.
//
// Sync tuning:
//
//	sync:
//	  poll_attempts: 30
//	  accumulate_chunks: false
//	  disable_push: false
//	  requests_per_second: 5
//
// Logging settings:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text or json
//
// Metrics endpoint (served only when addr is set):
//
//	metrics:
//	  addr: "127.0.0.1:9090"
//	  path: "/metrics"
//
// # Script-Tag Attributes
//
// FromAttributes maps data-* attributes (data-account-id, data-agent-slug,
// data-api-endpoint, data-primary-color, data-title, data-subtitle,
// data-position) onto a Config for the auto-init path.
//
// # Validation
//
// Validate returns a *ValidationError naming the first invalid field.
package config
