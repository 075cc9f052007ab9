// Package validate provides the validate command.
package validate

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/tags"
)

// Result is the structured output of the validate command.
type Result struct {
	Tag  string            `json:"tag" yaml:"tag"`
	Mode equipment.TagMode `json:"mode" yaml:"mode"`
	tags.Validation
}

// NewCommand creates the validate command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var mode, project string

	cmd := &cobra.Command{
		Use:     "validate TAG...",
		GroupID: "management",
		Short:   "Check tag numbers against a tag format",
		Long: `Validate checks each tag against the custom format (PMP-001) or the
hierarchical format (100-PMP-001). The format is taken from --project when
given, otherwise from --mode. Invalid tags come with a suggested fix where
one can be derived, and make the command exit non-zero.`,
		Example: `  tagsync validate PMP-001 PU --mode custom
  tagsync validate 100-PMP-001 --project "Unit 100"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagMode, err := equipment.ParseTagMode(mode)
			if err != nil {
				return err
			}
			if project != "" {
				client, err := app.Client(cmd.Context())
				if err != nil {
					return err
				}
				p, err := client.Store().Project(cmd.Context(), project)
				if err != nil {
					return err
				}
				tagMode = p.TagMode
			}

			results := make([]Result, 0, len(args))
			data := output.Data{Headers: []string{"Tag", "Valid", "Reason", "Suggestion"}}
			var firstErr error
			for _, tag := range args {
				v := tags.Validate(tag, tagMode)
				results = append(results, Result{Tag: tag, Mode: tagMode, Validation: v})

				valid := "yes"
				if !v.Valid {
					valid = "no"
					if firstErr == nil {
						firstErr = errors.NewTagValidationError(tag, tagMode.String(), v.Reason, v.Suggestion)
					}
				}
				data.Rows = append(data.Rows, []string{tag, valid, v.Reason, v.Suggestion})
			}

			if err := cmdutil.Print(cmd, app, results, data); err != nil {
				return err
			}
			return firstErr
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(equipment.TagModeCustom), "Tag format: custom or hierarchical")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Use this project's tag format")

	return cmd
}
