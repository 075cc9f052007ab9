// Package extract provides the extract command.
package extract

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
)

// NewCommand creates the extract command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var flags *cmdutil.ProjectFlags

	cmd := &cobra.Command{
		Use:     "extract DRAWING",
		GroupID: "core",
		Short:   "Add the drawing's new equipment to the store",
		Long: `Extract adds every equipment object the store does not know yet,
generating tags where the drawing has none and stamping a marker on each
added object. Equipment already in the store is left untouched; use sync
to merge field changes.`,
		Example: `  tagsync extract unit-100.yaml --project "Unit 100"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cmdutil.Open(cmd.Context(), app, flags.Project, args[0])
			if err != nil {
				return err
			}

			res, err := session.Client.Engine().ExtractAndStore(cmd.Context(), session.Project.ID, session.Drawing)
			if res != nil {
				if printErr := cmdutil.PrintResult(cmd, app, res); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}

	flags = cmdutil.AddProjectFlag(cmd)

	return cmd
}
