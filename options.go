package tagsync

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync/pkg/classify"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/extract"
	"github.com/agentstation/tagsync/pkg/reconcile"
	"github.com/agentstation/tagsync/pkg/store"
)

// config holds the client configuration collected from options.
type config struct {
	store           store.Store
	driver          string
	dsn             string
	mappingsPath    string
	extract         extract.Config
	rules           []classify.Rule
	typeCodes       map[string]string
	logger          *zerolog.Logger
	recorder        reconcile.Recorder
	markerWriteBack bool
}

func defaultConfig() *config {
	return &config{
		extract:         extract.DefaultConfig(),
		markerWriteBack: true,
	}
}

// Option is a function that configures a Client.
type Option func(*config) error

// WithStore uses an already opened store. The client does not close it.
func WithStore(st store.Store) Option {
	return func(c *config) error {
		c.store = st
		return nil
	}
}

// WithSQLite opens a SQLite store at path.
func WithSQLite(path string) Option {
	return WithDriver(DriverSQLite, path)
}

// WithPostgres opens a PostgreSQL store from a connection string.
func WithPostgres(dsn string) Option {
	return WithDriver(DriverPostgres, dsn)
}

// WithDriver selects a store driver by name with its data source.
func WithDriver(driver, dsn string) Option {
	return func(c *config) error {
		driver = strings.ToLower(strings.TrimSpace(driver))
		if driver != DriverMemory && strings.TrimSpace(dsn) == "" {
			return errors.NewConfigError("store", "a "+driver+" store needs a data source", nil)
		}
		c.driver = driver
		c.dsn = dsn
		return nil
	}
}

// WithMappingsFile persists learned block mappings in a YAML file.
func WithMappingsFile(path string) Option {
	return func(c *config) error {
		c.mappingsPath = path
		return nil
	}
}

// WithExtractConfig sets the extraction settings.
func WithExtractConfig(cfg extract.Config) Option {
	return func(c *config) error {
		c.extract = cfg
		return nil
	}
}

// WithRules replaces the classifier's naming rules.
func WithRules(rules []classify.Rule) Option {
	return func(c *config) error {
		c.rules = rules
		return nil
	}
}

// WithTypeCodes overrides tag type codes by equipment type.
func WithTypeCodes(codes map[string]string) Option {
	return func(c *config) error {
		c.typeCodes = codes
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithRecorder receives pass outcomes, for metrics.
func WithRecorder(r reconcile.Recorder) Option {
	return func(c *config) error {
		c.recorder = r
		return nil
	}
}

// WithMarkerWriteBack controls whether SourceToStore stamps markers on
// newly tagged drawing objects.
func WithMarkerWriteBack(enabled bool) Option {
	return func(c *config) error {
		c.markerWriteBack = enabled
		return nil
	}
}
