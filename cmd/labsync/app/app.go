// Package app provides the application context and dependency management
// for the labsync CLI: configuration, logging, and the lab sync client.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/store"
)

// App represents the labsync application with all its dependencies.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	mu      sync.Mutex
	clients []labsync.Client
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// NewClient creates a lab sync client from the configuration. The client
// and its preference store are closed by Shutdown.
func (a *App) NewClient(extra ...labsync.Option) (labsync.Client, error) {
	cfg := a.config
	if cfg.BaseURL == "" {
		return nil, errors.NewConfigError("base_url", "no lab API address; set --base-url or LABSYNC_BASE_URL", nil)
	}

	backend, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return nil, errors.WrapResource("open", "preference store", cfg.StorePath, err)
	}

	opts := []labsync.Option{
		labsync.WithBaseURL(cfg.BaseURL),
		labsync.WithToken(cfg.Token),
		labsync.WithStore(store.New(backend, a.logger)),
		labsync.WithLogger(a.logger),
		labsync.WithJobNotifications(cfg.JobNotifications),
	}
	if cfg.AuthScheme != "" {
		opts = append(opts, labsync.WithAuthScheme(cfg.AuthScheme))
	}
	client, err := labsync.New(append(opts, extra...)...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	a.mu.Lock()
	a.clients = append(a.clients, client)
	a.mu.Unlock()
	return client, nil
}

// Shutdown closes every client created by the app.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	clients := a.clients
	a.clients = nil
	a.mu.Unlock()

	var firstErr error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close client during shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput sets the writer commands print to.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}
