// Package preview provides the preview command.
package preview

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/extract"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// View is the structured output of the preview command.
type View struct {
	Drawing string                  `json:"drawing" yaml:"drawing"`
	Stats   extract.Stats           `json:"extraction" yaml:"extraction"`
	Objects []reconcile.PreviewItem `json:"objects" yaml:"objects"`
}

// NewCommand creates the preview command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "preview DRAWING",
		GroupID: "core",
		Short:   "Show the equipment found in a drawing without changing anything",
		Long: `Preview extracts equipment blocks from a drawing export and shows the
type each one would be given. Nothing is written to the drawing, the
store or the learned mappings.`,
		Example: `  tagsync preview unit-100.yaml
  tagsync preview unit-100.yaml -o wide`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cmdutil.Open(cmd.Context(), app, "", args[0])
			if err != nil {
				return err
			}

			items, stats, err := session.Client.Engine().Preview(cmd.Context(), session.Drawing)
			if err != nil {
				return err
			}

			view := View{Drawing: session.Drawing.Name(), Stats: stats, Objects: items}
			if err := cmdutil.Print(cmd, app, view, table(items)); err != nil {
				return err
			}

			if !cmdutil.IsStructured(app) {
				cmd.PrintErrf("\n%d of %d blocks matched, %d skipped\n", stats.Matched, stats.Scanned, stats.Skipped)
				for _, p := range stats.Problems {
					cmd.PrintErrln("warning: " + p)
				}
			}
			return nil
		},
	}
}

func table(items []reconcile.PreviewItem) output.Data {
	data := output.Data{
		Headers:  []string{"Handle", "Block", "Tag", "Type", "Confidence", "Layer", "Tagged"},
		WideFrom: 5,
	}
	for _, item := range items {
		data.Rows = append(data.Rows, []string{
			item.Handle,
			item.Block,
			item.Tag,
			item.EquipmentType,
			cmdutil.Percent(item.Confidence),
			item.Layer,
			strconv.FormatBool(item.Tagged),
		})
	}
	return data
}
