// ABOUTME: Tests for CLI config resolution and the theme subcommand
// ABOUTME: Uses temp dirs for the working directory and token discovery

package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389/chatwidget/internal/auth"
	"github.com/2389/chatwidget/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv(auth.TokenEnv, "")
	t.Setenv(configEnv, "")
	return dir
}

func TestResolveConfigPath(t *testing.T) {
	dir := isolate(t)

	f := &rootFlags{}
	if got := f.resolveConfigPath(); got != "" {
		t.Errorf("resolveConfigPath() = %q, want empty", got)
	}

	if err := os.WriteFile(filepath.Join(dir, defaultConfigFile), []byte("widget: {}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if got := f.resolveConfigPath(); got != defaultConfigFile {
		t.Errorf("resolveConfigPath() = %q, want %q", got, defaultConfigFile)
	}

	t.Setenv(configEnv, "/etc/chatwidget.yaml")
	if got := f.resolveConfigPath(); got != "/etc/chatwidget.yaml" {
		t.Errorf("resolveConfigPath() = %q, want env path", got)
	}

	f.configPath = "explicit.yaml"
	if got := f.resolveConfigPath(); got != "explicit.yaml" {
		t.Errorf("resolveConfigPath() = %q, want flag path", got)
	}
}

func TestLoadConfig_FlagsOnly(t *testing.T) {
	isolate(t)
	t.Setenv(auth.TokenEnv, "env-token")

	f := &rootFlags{accountID: "acct", agentSlug: "bot", metricsAddr: ":9100"}
	cfg, err := f.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Widget.AccountID != "acct" || cfg.Widget.AgentSlug != "bot" {
		t.Errorf("identity = %q/%q, want acct/bot", cfg.Widget.AccountID, cfg.Widget.AgentSlug)
	}
	if cfg.Widget.APIEndpoint != config.DefaultAPIEndpoint {
		t.Errorf("APIEndpoint = %q, want %q", cfg.Widget.APIEndpoint, config.DefaultAPIEndpoint)
	}
	if cfg.Widget.Token != "env-token" {
		t.Errorf("Token = %q, want discovered token", cfg.Widget.Token)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want :9100", cfg.Metrics.Addr)
	}
}

func TestLoadConfig_FileWithOverrides(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "widget.yaml")
	content := `widget:
  account_id: acct
  agent_slug: bot
  api_endpoint: https://file.example
  token: file-token
sync:
  poll_interval: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f := &rootFlags{configPath: path, endpoint: "https://flag.example/"}
	cfg, err := f.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got := cfg.Widget.Endpoint(); got != "https://flag.example" {
		t.Errorf("Endpoint() = %q, want flag override", got)
	}
	if cfg.Widget.Token != "file-token" {
		t.Errorf("Token = %q, want file token", cfg.Widget.Token)
	}
	if cfg.Sync.PollInterval.String() != "2s" {
		t.Errorf("PollInterval = %v, want 2s", cfg.Sync.PollInterval)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := isolate(t)

	envPath := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(envPath, []byte("CHATWIDGET_TOKEN=dotenv-token\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// godotenv does not override variables that are already set.
	if err := os.Unsetenv(auth.TokenEnv); err != nil {
		t.Fatalf("Unsetenv() error = %v", err)
	}

	f := &rootFlags{envFile: envPath, accountID: "acct", agentSlug: "bot"}
	cfg, err := f.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Widget.Token != "dotenv-token" {
		t.Errorf("Token = %q, want token from env file", cfg.Widget.Token)
	}
}

func TestLoadConfig_MissingIdentity(t *testing.T) {
	isolate(t)

	_, err := (&rootFlags{accountID: "acct"}).loadConfig()
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("loadConfig() error = %v, want *config.ValidationError", err)
	}
	if verr.Field != "widget.agent_slug" {
		t.Errorf("Field = %q, want widget.agent_slug", verr.Field)
	}
}

func TestRunTheme_Offline(t *testing.T) {
	cfg := config.Config{Widget: config.Widget{
		AccountID:    "acct",
		AgentSlug:    "bot",
		PrimaryColor: "#222222",
		ChatTitle:    "Support",
	}}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := runTheme(t.Context(), cfg, true, logger, &buf); err != nil {
		t.Fatalf("runTheme() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"primarycolor:", "#222222", "title: Support"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
