// Package appcontext provides the shared application context interface
// used by all commands, so command packages depend on an interface rather
// than on the concrete App.
package appcontext

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync"
)

// Interface defines what commands need from the application.
// The App struct from cmd/tagsync/app implements it; tests use Mock.
type Interface interface {
	// Client returns the tagsync client, opening the store lazily.
	Client(ctx context.Context) (*tagsync.Client, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml, wide).
	OutputFormat() string

	// AutoAcceptThreshold is the confidence at or above which a
	// classification is accepted without asking.
	AutoAcceptThreshold() float64

	// In is where interactive answers are read from.
	In() io.Reader

	// Interactive reports whether the operator can be prompted.
	Interactive() bool

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
