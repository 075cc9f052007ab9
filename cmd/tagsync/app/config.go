package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/tagsync"
	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/errors"
)

// EnvPrefix is prepended to every environment variable the CLI reads.
const EnvPrefix = "TAGSYNC"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// System of record
	StoreDriver string
	StoreDSN    string

	// Learned block mappings
	MappingsPath string

	// Extraction
	EquipmentPrefixes []string
	TagAttributes     []string

	// Classification
	AutoAcceptThreshold float64

	// MetricsTextfile, when set, receives the pass metrics on shutdown.
	MetricsTextfile string

	// MarkerWriteBack stamps markers onto newly added drawing objects.
	MarkerWriteBack bool

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (TAGSYNC_*)
// 3. .env files
// 4. Config file (~/.tagsync.yaml or ./.tagsync.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv(EnvPrefix + "_CONFIG"))
}

// LoadConfigFile is LoadConfig with an explicit config file. An empty path
// searches the standard locations; a missing explicit file is an error.
func LoadConfigFile(configFile string) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.ConfigFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "failed to read config file", err)
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		StoreDriver:  strings.ToLower(v.GetString("store.driver")),
		StoreDSN:     v.GetString("store.dsn"),
		MappingsPath: v.GetString("mappings.path"),

		EquipmentPrefixes: stringSlice(v, "extract.prefixes"),
		TagAttributes:     stringSlice(v, "extract.tag_attributes"),

		AutoAcceptThreshold: v.GetFloat64("classify.auto_accept_threshold"),
		MetricsTextfile:     v.GetString("metrics.textfile"),
		MarkerWriteBack:     v.GetBool("marker_write_back"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", tagsync.DriverSQLite)
	v.SetDefault("store.dsn", constants.DatabaseFileName)
	v.SetDefault("mappings.path", constants.MappingsFileName)
	v.SetDefault("classify.auto_accept_threshold", constants.DefaultAutoAcceptThreshold)
	v.SetDefault("marker_write_back", true)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case tagsync.DriverSQLite, tagsync.DriverPostgres, tagsync.DriverMemory:
	default:
		return errors.NewConfigError("store", "unknown driver "+c.StoreDriver+": must be sqlite, postgres or memory", nil)
	}
	if c.StoreDriver != tagsync.DriverMemory && c.StoreDSN == "" {
		return errors.NewConfigError("store", "store.dsn is required for "+c.StoreDriver, nil)
	}
	if c.AutoAcceptThreshold < 0 || c.AutoAcceptThreshold > 1 {
		return errors.NewConfigError("classify", "auto_accept_threshold must be between 0 and 1", nil)
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// stringSlice reads a list that may be given as YAML sequence or as a
// comma separated environment value.
func stringSlice(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// loadEnvFiles loads environment variables from .env files.
func loadEnvFiles() {
	// .env.local overrides .env
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
