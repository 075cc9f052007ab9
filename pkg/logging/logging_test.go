package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/logging"
)

func TestDefaultLogger(t *testing.T) {
	original := *logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	buf := &bytes.Buffer{}
	logging.SetDefault(zerolog.New(buf).Level(zerolog.DebugLevel))

	logging.Info().Str("tag", "PMP-001").Msg("record added")
	assert.Contains(t, buf.String(), "record added")
	assert.Contains(t, buf.String(), "PMP-001")
}

func TestContextLogger(t *testing.T) {
	testLogger := logging.NewTestLogger(t)

	ctx := logging.WithLogger(context.Background(), testLogger.Logger)
	ctx = logging.WithProject(ctx, "proj-1")
	ctx = logging.WithDrawing(ctx, "unit-100.yaml")
	ctx = logging.WithOperation(ctx, "sync")

	logging.FromContext(ctx).Info().Msg("pass started")

	testLogger.AssertContains(t, `"project_id":"proj-1"`)
	testLogger.AssertContains(t, `"drawing":"unit-100.yaml"`)
	testLogger.AssertContains(t, `"operation":"sync"`)
	assert.Equal(t, 1, testLogger.Count("pass started"))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.FromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Same(t, logging.Default(), logging.FromContext(nil))
	assert.Same(t, logging.Default(), logging.OrDefault(nil))
}

func TestNewLoggerFromConfig(t *testing.T) {
	originalLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(originalLevel) })

	path := filepath.Join(t.TempDir(), "tagsync.log")
	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:  "warn",
		Format: "json",
		Output: path,
	})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("visible")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), `"level":"warn"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := logging.DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "auto", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
}
