// Package cmdtest provides helpers for testing tagsync commands against an
// in-memory client and drawing exports written to a temp directory.
package cmdtest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync"
	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/logging"
	"github.com/agentstation/tagsync/pkg/store/storetest"
)

// NewApp returns a mock app sharing one in-memory client across commands.
func NewApp(t *testing.T, opts ...tagsync.Option) (*appcontext.Mock, *tagsync.Client) {
	t.Helper()
	opts = append([]tagsync.Option{tagsync.WithLogger(logging.NewNopLogger())}, opts...)
	client, err := tagsync.New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &appcontext.Mock{
		ClientFunc: func(context.Context) (*tagsync.Client, error) { return client, nil },
	}, client
}

// NewProject creates a project in the client's store.
func NewProject(t *testing.T, client *tagsync.Client, name string, mode equipment.TagMode) equipment.Project {
	t.Helper()
	return storetest.NewProject(t, client.Store(), name, mode)
}

// WriteDrawing writes a drawing export holding objects and returns its path.
func WriteDrawing(t *testing.T, name string, objects ...drawing.Object) string {
	t.Helper()
	doc := struct {
		Drawing string           `yaml:"drawing"`
		Objects []drawing.Object `yaml:"objects"`
	}{Drawing: name, Objects: objects}

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// ReadDrawing reopens a drawing export.
func ReadDrawing(t *testing.T, path string) *drawing.FileHost {
	t.Helper()
	host, err := drawing.OpenFile(path)
	require.NoError(t, err)
	return host
}

// Run executes cmd with args and returns what it wrote to stdout and stderr.
func Run(t *testing.T, cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}
