// Package cmdutil provides flags and helpers shared by tagsync commands.
package cmdutil

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync"
	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
)

// ProjectFlags holds the project selection flag.
type ProjectFlags struct {
	Project string
}

// AddProjectFlag adds the required --project flag to a command.
func AddProjectFlag(cmd *cobra.Command) *ProjectFlags {
	flags := &ProjectFlags{}
	cmd.Flags().StringVarP(&flags.Project, "project", "p", "",
		"Project ID or name")
	_ = cmd.MarkFlagRequired("project")
	return flags
}

// Session is what a drawing command works with: the client, the project
// and the opened drawing.
type Session struct {
	Client  *tagsync.Client
	Project equipment.Project
	Drawing *drawing.FileHost
}

// Open resolves the project and opens the drawing export at path. An empty
// projectRef skips project resolution.
func Open(ctx context.Context, app appcontext.Interface, projectRef, path string) (*Session, error) {
	host, err := drawing.OpenFile(path)
	if err != nil {
		return nil, err
	}

	client, err := app.Client(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{Client: client, Drawing: host}
	if projectRef != "" {
		if s.Project, err = client.Store().Project(ctx, projectRef); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Format returns the output format for the app, detecting it from the
// terminal when none is configured.
func Format(app appcontext.Interface) output.Format {
	return output.DetectFormat(app.OutputFormat())
}

// Print writes raw for structured formats and table otherwise.
func Print(cmd *cobra.Command, app appcontext.Interface, raw any, table output.Data) error {
	return output.Print(cmd.OutOrStdout(), Format(app), raw, table)
}

// IsStructured reports whether the app prints JSON or YAML.
func IsStructured(app appcontext.Interface) bool {
	f := Format(app)
	return f == output.FormatJSON || f == output.FormatYAML
}
