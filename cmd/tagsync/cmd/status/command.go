// Package status provides the status command.
package status

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// NewCommand creates the status command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var (
		flags     *cmdutil.ProjectFlags
		highlight bool
		state     string
	)

	cmd := &cobra.Command{
		Use:     "status DRAWING",
		GroupID: "core",
		Short:   "Show which drawing objects are untagged, tagged or synced",
		Long: `Status compares each equipment object's marker with the store.

  untagged  the object carries no marker
  tagged    the object has a marker, but its record changed since
  synced    the marker is at least as new as the record

The drawing is never modified.`,
		Example: `  tagsync status unit-100.yaml --project "Unit 100"
  tagsync status unit-100.yaml --project "Unit 100" --state untagged`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch reconcile.ObjectState(state) {
			case "", reconcile.StateUntagged, reconcile.StateTagged, reconcile.StateSynced:
			default:
				return errors.NewValidationError("state", state, "must be untagged, tagged or synced")
			}

			session, err := cmdutil.Open(cmd.Context(), app, flags.Project, args[0])
			if err != nil {
				return err
			}

			report, err := session.Client.Engine().Status(cmd.Context(), session.Project.ID, session.Drawing, highlight)
			if err != nil {
				return err
			}

			objects := report.Objects
			if state != "" {
				objects = filter(objects, reconcile.ObjectState(state))
			}

			if cmdutil.IsStructured(app) {
				filtered := *report
				filtered.Objects = objects
				return cmdutil.Print(cmd, app, filtered, output.Data{})
			}

			if err := cmdutil.Print(cmd, app, nil, table(objects)); err != nil {
				return err
			}
			cmd.PrintErrf("\n%d untagged, %d tagged, %d synced\n", report.Untagged, report.Tagged, report.Synced)
			for _, w := range report.Warnings {
				cmd.PrintErrln("warning: " + w)
			}
			return nil
		},
	}

	flags = cmdutil.AddProjectFlag(cmd)
	cmd.Flags().BoolVar(&highlight, "highlight", false, "Mark objects visually in hosts that support it")
	cmd.Flags().StringVar(&state, "state", "", "Only show objects in this state: untagged, tagged or synced")

	return cmd
}

func filter(objects []reconcile.ObjectStatus, state reconcile.ObjectState) []reconcile.ObjectStatus {
	var out []reconcile.ObjectStatus
	for _, o := range objects {
		if o.State == state {
			out = append(out, o)
		}
	}
	return out
}

func table(objects []reconcile.ObjectStatus) output.Data {
	data := output.Data{Headers: []string{"Handle", "Block", "Tag", "State"}}
	for _, o := range objects {
		data.Rows = append(data.Rows, []string{o.Handle, o.Block, o.Tag, string(o.State)})
	}
	return data
}
