package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bitechdev/JobFeed/pkg/auth"
	"github.com/bitechdev/JobFeed/pkg/backoff"
	"github.com/bitechdev/JobFeed/pkg/config"
	"github.com/bitechdev/JobFeed/pkg/errortracking"
	"github.com/bitechdev/JobFeed/pkg/jobs"
	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
	"github.com/bitechdev/JobFeed/pkg/realtime"
	"github.com/bitechdev/JobFeed/pkg/tracing"
	"github.com/bitechdev/JobFeed/pkg/transport"
)

// App holds the process-wide services shared by commands.
type App struct {
	Config  *config.Config
	Metrics metrics.Provider
	Tokens  auth.Store
	Auth    *auth.RefreshingProvider

	store         *jobs.Store
	stopTracing   func(context.Context) error
	closeHandlers []func()
}

// NewApp initializes logging, error tracking, tracing, metrics and auth from cfg.
func NewApp(cfg *config.Config) (*App, error) {
	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}

	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		return nil, fmt.Errorf("error tracking: %w", err)
	}
	logger.InitErrorTracking(tracker)

	stopTracing, err := tracing.InitTracer(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Endpoint:       cfg.Tracing.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	var provider metrics.Provider = &metrics.NoOpProvider{}
	if cfg.Metrics.Enabled {
		provider = metrics.NewPrometheusProvider(metrics.DefaultConfig())
	}
	metrics.SetProvider(provider)

	tokens, err := openTokenStore(cfg.Auth.TokenFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Metrics: provider,
		Tokens:  tokens,
		Auth: auth.NewRefreshingProvider(tokens, cfg.Auth.BackendURL,
			auth.WithHTTPClient(&http.Client{Timeout: cfg.Auth.RefreshTimeout}),
			auth.WithRetries(cfg.Auth.RefreshRetries),
		),
		stopTracing: stopTracing,
	}
	return a, nil
}

func openTokenStore(path string) (auth.Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			logger.Warn("No user config dir (%v), tokens will not be persisted", err)
			return auth.NewMemoryStore("", ""), nil
		}
		path = filepath.Join(dir, "jobfeed", "tokens.json")
	}
	store, err := auth.OpenFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	return store, nil
}

// NewClient builds a realtime client for the configured transport.
func (a *App) NewClient(opts ...realtime.Option) (*realtime.Client, error) {
	t, err := transport.NewFromConfig(a.Config.Realtime)
	if err != nil {
		return nil, err
	}

	rc := a.Config.Realtime
	base := []realtime.Option{
		realtime.WithTokenProvider(a.Auth),
		realtime.WithMetrics(a.Metrics),
		realtime.WithBackoff(backoff.Policy{
			BaseDelay: rc.Backoff.BaseDelay,
			MaxDelay:  rc.Backoff.MaxDelay,
			Jitter:    rc.Backoff.Jitter,
		}),
		realtime.WithPublishLimit(rc.PublishRateLimit, rc.PublishBurst),
	}
	c := realtime.New(t, append(base, opts...)...)
	a.onClose(c.Disconnect)
	return c, nil
}

// Connect connects c within the configured connect timeout.
func (a *App) Connect(ctx context.Context, c *realtime.Client) error {
	timeout := a.Config.Realtime.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Connect(ctx)
}

// Store opens the local job store on first use.
func (a *App) Store() (*jobs.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := jobs.Open(a.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// API returns a backend client that authenticates with the stored tokens.
func (a *App) API(ctx context.Context) *jobs.API {
	return jobs.NewAPI(a.Config.Auth.BackendURL, a.Auth.HTTPClient(ctx), a.Auth)
}

func (a *App) onClose(fn func()) {
	a.closeHandlers = append(a.closeHandlers, fn)
}

// Close releases everything NewApp and the accessors opened.
func (a *App) Close() {
	for i := len(a.closeHandlers) - 1; i >= 0; i-- {
		a.closeHandlers[i]()
	}
	a.closeHandlers = nil

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close job store: %v", err)
		}
		a.store = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			logger.Warn("Failed to shut down tracing: %v", err)
		}
	}
	if err := logger.CloseErrorTracking(); err != nil {
		logger.Warn("Failed to close error tracking: %v", err)
	}
	logger.Sync()
}
