// Package logging provides structured logging for tagsync using zerolog.
// Console output is used when stderr is a terminal and JSON otherwise, so a
// reconciliation pass can be read by an operator or shipped to a collector
// without changing code.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Str("project_id", "p1").Int("added", 3).Msg("Sync pass finished")
//
//	ctx := logging.WithProject(context.Background(), "p1")
//	logging.FromContext(ctx).Debug().Msg("Loading records")
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultLogger is the global logger instance.
var defaultLogger zerolog.Logger

func init() {
	defaultLogger = NewLoggerFromConfig(envConfig())
}

// envConfig reads LOG_LEVEL, LOG_FORMAT and DEBUG for the logger used
// before the CLI has loaded its own configuration.
func envConfig() *Config {
	cfg := DefaultConfig()
	switch {
	case os.Getenv("LOG_LEVEL") != "":
		cfg.Level = os.Getenv("LOG_LEVEL")
	case os.Getenv("DEBUG") != "":
		cfg.Level = "debug"
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	return cfg
}

// Default returns the default global logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault sets the default global logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// OrDefault returns logger, or the default logger when logger is nil.
func OrDefault(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		return Default()
	}
	return logger
}

// Info starts a new info level log event on the default logger.
func Info() *zerolog.Event {
	return defaultLogger.Info()
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
