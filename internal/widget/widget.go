// ABOUTME: Widget lifecycle: validate config, wire client, cable and engine, mount and unmount
// ABOUTME: Theme fetch and conversation bootstrap run concurrently under an errgroup

package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/auth"
	"github.com/2389/chatwidget/internal/cable"
	"github.com/2389/chatwidget/internal/config"
	"github.com/2389/chatwidget/internal/conversation"
	"github.com/2389/chatwidget/internal/metrics"
	"github.com/2389/chatwidget/internal/theme"
)

const requestTimeout = 30 * time.Second

// Option configures Mount.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Recorder
	consumer   *cable.Consumer
	httpClient *http.Client
}

// WithLogger sets the logger. Pass nil for default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records sync activity on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *options) { o.metrics = rec }
}

// WithConsumer shares an existing cable consumer. The widget then never
// disconnects it; Unmount only releases the widget's subscription.
func WithConsumer(c *cable.Consumer) Option {
	return func(o *options) { o.consumer = c }
}

// WithHTTPClient replaces the HTTP client used for REST calls and the cable
// handshake. The configured token is not added to a custom client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// Widget is one mounted chat widget.
type Widget struct {
	cfg          config.Config
	client       *api.Client
	engine       *conversation.Engine
	consumer     *cable.Consumer
	ownsConsumer bool
	logger       *slog.Logger

	mu    sync.RWMutex
	theme theme.Resolved

	unmountOnce sync.Once
}

// Mount validates cfg and starts a widget. Validation failures are logged and
// returned as *config.ValidationError with nothing started.
func Mount(ctx context.Context, cfg config.Config, opts ...Option) (*Widget, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "widget")

	if err := cfg.Validate(); err != nil {
		logger.Error("widget not mounted: invalid configuration", "error", err)
		return nil, err
	}
	cfg.ApplyDefaults()

	token := cfg.Widget.Token
	if token != "" {
		if _, err := auth.Check(token, time.Now()); err != nil && !errors.Is(err, auth.ErrInvalidToken) {
			logger.Error("widget not mounted", "error", err)
			return nil, fmt.Errorf("checking token: %w", err)
		}
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = auth.NewHTTPClient(token, requestTimeout)
	}

	endpoint := cfg.Widget.Endpoint()
	client := api.NewClient(api.Config{
		AccountID:   cfg.Widget.AccountID,
		AgentSlug:   cfg.Widget.AgentSlug,
		APIEndpoint: endpoint,
	},
		api.WithHTTPClient(httpClient),
		api.WithRequestsPerSecond(cfg.Sync.RequestsPerSecond, 1),
		api.WithLogger(o.logger),
	)

	w := &Widget{
		cfg:    cfg,
		client: client,
		logger: logger.With("account_id", cfg.Widget.AccountID, "agent_slug", cfg.Widget.AgentSlug),
		theme:  theme.Resolve(cfg.Widget, nil),
	}

	engineOpts := []conversation.Option{
		conversation.WithLogger(o.logger),
		conversation.WithPolling(cfg.Sync.PollInterval, cfg.Sync.PollAttempts),
		conversation.WithAccumulateChunks(cfg.Sync.AccumulateChunks),
		conversation.WithMetrics(o.metrics),
	}

	if !cfg.Sync.DisablePush {
		consumer := o.consumer
		if consumer == nil {
			cableURL, err := cable.URLFromEndpoint(endpoint, token)
			if err != nil {
				logger.Error("widget not mounted: bad endpoint", "endpoint", endpoint, "error", err)
				return nil, fmt.Errorf("building cable url: %w", err)
			}
			consumerOpts := []cable.ConsumerOption{
				cable.WithLogger(o.logger),
				cable.WithHTTPClient(httpClient),
				cable.WithStaleThreshold(cfg.Sync.StaleThreshold),
			}
			if o.metrics != nil {
				consumerOpts = append(consumerOpts, cable.WithObserver(o.metrics))
			}
			consumer = cable.NewConsumer(cableURL, consumerOpts...)
			w.ownsConsumer = true
		}
		w.consumer = consumer
		channel := cable.NewChatChannel(consumer, o.logger)
		engineOpts = append(engineOpts, conversation.WithPusher(conversation.NewCablePusher(channel)))
	}

	w.engine = conversation.NewEngine(client, engineOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		remote, err := client.FetchTheme(gctx)
		if err != nil {
			w.logger.Warn("theme unavailable, using defaults", "error", err)
			return nil
		}
		w.setTheme(theme.Resolve(cfg.Widget, remote))
		return nil
	})
	g.Go(func() error {
		return w.engine.Bootstrap(gctx)
	})
	if err := g.Wait(); err != nil {
		w.logger.Warn("conversation bootstrap failed", "error", err)
	}

	w.logger.Info("widget mounted", "endpoint", endpoint, "push", !cfg.Sync.DisablePush)
	return w, nil
}

// MountFromAttributes mounts from script-tag style attributes. It returns
// (nil, nil) when the account or agent attribute is missing.
func MountFromAttributes(ctx context.Context, attrs map[string]string, opts ...Option) (*Widget, error) {
	cfg, ok := config.FromAttributes(attrs)
	if !ok {
		return nil, nil
	}
	return Mount(ctx, cfg, opts...)
}

// Engine returns the conversation engine.
func (w *Widget) Engine() *conversation.Engine {
	return w.engine
}

// Config returns the effective configuration, with defaults applied.
func (w *Widget) Config() config.Config {
	return w.cfg
}

// Theme returns the resolved theme.
func (w *Widget) Theme() theme.Resolved {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.theme
}

// RefreshTheme reloads the account theme and updates the branding assets.
// Colors keep their mounted values.
func (w *Widget) RefreshTheme(ctx context.Context) error {
	remote, err := w.client.FetchTheme(ctx)
	if err != nil {
		return fmt.Errorf("refreshing theme: %w", err)
	}

	w.mu.Lock()
	w.theme = theme.UpdateWithAPIData(w.theme, *remote)
	w.mu.Unlock()
	return nil
}

// Unmount closes the engine and, when the widget created it, the cable
// consumer. Safe to call more than once.
func (w *Widget) Unmount() {
	w.unmountOnce.Do(func() {
		w.engine.Close()
		if w.ownsConsumer && w.consumer != nil {
			w.consumer.DisconnectAll()
		}
		w.logger.Info("widget unmounted")
	})
}

func (w *Widget) setTheme(t theme.Resolved) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.theme = t
}
