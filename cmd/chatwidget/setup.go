// ABOUTME: Config resolution, logger construction and the optional metrics listener
// ABOUTME: Flags override file values; the bearer token falls back to auth discovery

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/chatwidget/internal/auth"
	"github.com/2389/chatwidget/internal/config"
	"github.com/2389/chatwidget/internal/metrics"
)

const (
	configEnv         = "CHATWIDGET_CONFIG"
	defaultConfigFile = "chatwidget.yaml"
)

type rootFlags struct {
	configPath  string
	envFile     string
	metricsAddr string
	accountID   string
	agentSlug   string
	endpoint    string
}

// resolveConfigPath returns the config file to load, or "" to run from flags alone.
// Priority: --config > CHATWIDGET_CONFIG > ./chatwidget.yaml when it exists.
func (f *rootFlags) resolveConfigPath() string {
	if f.configPath != "" {
		return f.configPath
	}
	if envPath := os.Getenv(configEnv); envPath != "" {
		return envPath
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// loadConfig builds the effective configuration. The result is validated.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg *config.Config
	if path := f.resolveConfigPath(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		defaults := config.Defaults()
		cfg = &defaults
	}

	if f.accountID != "" {
		cfg.Widget.AccountID = f.accountID
	}
	if f.agentSlug != "" {
		cfg.Widget.AgentSlug = f.agentSlug
	}
	if f.endpoint != "" {
		cfg.Widget.APIEndpoint = f.endpoint
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if cfg.Widget.Token == "" {
		cfg.Widget.Token = auth.Discover()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			out:   os.Stderr,
			level: level,
		}
	}

	return slog.New(handler)
}

// startMetrics registers the widget collectors and, when addr is set, serves
// them until ctx ends. The returned recorder is never nil.
func startMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) *metrics.Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	rec := metrics.New(reg)

	if cfg.Addr == "" {
		return rec
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return rec
}
