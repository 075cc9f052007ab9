package appcontext

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync"
	"github.com/agentstation/tagsync/pkg/constants"
)

var _ Interface = (*Mock)(nil)

// Mock provides a mock implementation of Interface for testing.
// If a function field is nil, the method returns a default value.
type Mock struct {
	ClientFunc    func(ctx context.Context) (*tagsync.Client, error)
	LoggerFunc    func() *zerolog.Logger
	Format        string
	Threshold     float64
	Input         io.Reader
	IsInteractive bool
	VersionFunc   func() string
}

// Client returns a client using the mock function or an in-memory client.
func (m *Mock) Client(ctx context.Context) (*tagsync.Client, error) {
	if m.ClientFunc != nil {
		return m.ClientFunc(ctx)
	}
	return tagsync.New(ctx, tagsync.WithLogger(m.Logger()))
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns Format or "json".
func (m *Mock) OutputFormat() string {
	if m.Format == "" {
		return "json"
	}
	return m.Format
}

// AutoAcceptThreshold returns Threshold or the default.
func (m *Mock) AutoAcceptThreshold() float64 {
	if m.Threshold == 0 {
		return constants.DefaultAutoAcceptThreshold
	}
	return m.Threshold
}

// In returns Input or an empty reader.
func (m *Mock) In() io.Reader {
	if m.Input == nil {
		return strings.NewReader("")
	}
	return m.Input
}

// Interactive returns IsInteractive.
func (m *Mock) Interactive() bool {
	return m.IsInteractive
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns "unknown".
func (m *Mock) Commit() string { return "unknown" }

// Date returns "unknown".
func (m *Mock) Date() string { return "unknown" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }
