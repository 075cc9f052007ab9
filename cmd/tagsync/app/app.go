// Package app provides the application context and dependency management
// for the tagsync CLI. It centralizes configuration, logging, the tagsync
// client and lifecycle management.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync"
	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/internal/metrics"
	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/extract"
)

var _ appcontext.Interface = (*App)(nil)

// App represents the tagsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	in     io.Reader

	recorder *metrics.Recorder

	// Client instance (lazy-initialized, singleton)
	mu     sync.Mutex
	client *tagsync.Client
	// ownsClient is false when the client was injected.
	ownsClient bool
}

// New creates a new App instance with the given version information.
// The app is initialized with default configuration that can be
// customized using functional options.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version:  version,
		commit:   commit,
		date:     date,
		builtBy:  builtBy,
		in:       os.Stdin,
		recorder: metrics.New(),
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.config == nil {
		config, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		app.config = config
	}

	if app.logger == nil {
		logger := NewLogger(app.config)
		app.logger = &logger
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// AutoAcceptThreshold returns the classification auto-accept threshold.
func (a *App) AutoAcceptThreshold() float64 {
	return a.config.AutoAcceptThreshold
}

// In returns the reader interactive answers come from.
func (a *App) In() io.Reader {
	return a.in
}

// Interactive reports whether stdin is a terminal.
func (a *App) Interactive() bool {
	f, ok := a.in.(*os.File)
	return ok && output.IsTerminal(f)
}

// Metrics returns the pass metrics recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.recorder
}

// Client returns the tagsync client, opening the store on first use.
func (a *App) Client(ctx context.Context) (*tagsync.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	ctx, cancel := context.WithTimeout(ctx, constants.StoreConnectTimeout)
	defer cancel()

	client, err := tagsync.New(ctx, a.clientOptions()...)
	if err != nil {
		return nil, errors.NewConfigError("store", "failed to open "+a.config.StoreDriver+" store", err)
	}

	a.client = client
	a.ownsClient = true
	return client, nil
}

// Shutdown closes the client, which saves learned mappings, and writes
// the metrics textfile when one is configured.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	client, owns := a.client, a.ownsClient
	a.client = nil
	a.mu.Unlock()

	var errs []error
	if client != nil && owns {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if client != nil && a.config.MetricsTextfile != "" {
		if err := a.recorder.WriteTextfile(a.config.MetricsTextfile); err != nil {
			a.logger.Warn().Err(err).Str("path", a.config.MetricsTextfile).Msg("Failed to write metrics textfile")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// clientOptions constructs client options from the app configuration.
func (a *App) clientOptions() []tagsync.Option {
	opts := []tagsync.Option{
		tagsync.WithDriver(a.config.StoreDriver, a.config.StoreDSN),
		tagsync.WithLogger(a.logger),
		tagsync.WithRecorder(a.recorder),
		tagsync.WithMarkerWriteBack(a.config.MarkerWriteBack),
	}

	if a.config.MappingsPath != "" {
		opts = append(opts, tagsync.WithMappingsFile(a.config.MappingsPath))
	}

	if len(a.config.EquipmentPrefixes) > 0 || len(a.config.TagAttributes) > 0 {
		cfg := extract.DefaultConfig()
		if len(a.config.EquipmentPrefixes) > 0 {
			cfg.EquipmentPrefixes = a.config.EquipmentPrefixes
		}
		if len(a.config.TagAttributes) > 0 {
			cfg.TagAttributes = a.config.TagAttributes
		}
		opts = append(opts, tagsync.WithExtractConfig(cfg))
	}

	return opts
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if err := config.Validate(); err != nil {
			return err
		}
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

// WithClient sets a custom client (useful for testing). The app does not
// close it.
func WithClient(client *tagsync.Client) Option {
	return func(a *App) error {
		a.client = client
		return nil
	}
}

// WithInput sets where interactive answers are read from.
func WithInput(r io.Reader) Option {
	return func(a *App) error {
		a.in = r
		return nil
	}
}
