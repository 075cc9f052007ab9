// Package mappings provides the learned block mapping commands.
package mappings

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/internal/cmd/prompt"
	"github.com/agentstation/tagsync/pkg/classify"
	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// NewCommand creates the mappings command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mappings",
		GroupID: "management",
		Short:   "Inspect and manage learned block mappings",
		Long: `Every time equipment is classified, the block name and the chosen type
are remembered. Confidence grows with use and is highest for mappings an
operator confirmed.`,
		Example: `  tagsync mappings list
  tagsync mappings learn PUMP_CENTRIFUGAL Pump --confirm
  tagsync mappings export backup.yaml
  tagsync mappings import backup.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown subcommand: %s", args[0])
		},
	}

	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newLearnCommand(app))
	cmd.AddCommand(newExportCommand(app))
	cmd.AddCommand(newImportCommand(app))
	cmd.AddCommand(newResetCommand(app))

	return cmd
}

func newListCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List learned mappings",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}
			mappings := client.Classifier().Mappings()
			return cmdutil.Print(cmd, app, mappings, table(mappings))
		},
	}
}

func newLearnCommand(app appcontext.Interface) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "learn BLOCK TYPE",
		Short: "Teach the classifier a block's equipment type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}

			classifier := client.Classifier()
			m, err := classifier.Learn(args[0], args[1], confirm)
			if err != nil {
				return err
			}
			if err := classifier.Save(); err != nil {
				return err
			}

			return cmdutil.Print(cmd, app, m, table([]equipment.LearnedMapping{m}))
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", true, "Record the mapping as operator-confirmed")

	return cmd
}

func newExportCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the learned mappings as YAML (stdout when FILE is omitted or -)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}

			data, err := classify.Encode(client.Classifier().Export())
			if err != nil {
				return err
			}

			if len(args) == 0 || args[0] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, constants.FilePermissions); err != nil {
				return errors.WrapIO("write", args[0], err)
			}
			app.Logger().Info().Str("path", args[0]).Msg("Mappings exported")
			return nil
		},
	}
}

func newImportCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Merge mappings from a YAML file (stdin when FILE is -)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(app.In())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.WrapIO("read", args[0], err)
			}

			decoded, err := classify.Decode(data)
			if err != nil {
				return err
			}
			mappings := make([]equipment.LearnedMapping, 0, len(decoded))
			for _, m := range decoded {
				mappings = append(mappings, m)
			}

			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}
			classifier := client.Classifier()
			n := classifier.Import(mappings)
			if err := classifier.Save(); err != nil {
				return err
			}

			cmd.PrintErrf("Imported %d mapping(s)\n", n)
			return nil
		},
	}
}

func newResetCommand(app appcontext.Interface) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every learned mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				if !app.Interactive() {
					return errors.NewValidationError("yes", false, "pass --yes to reset without a terminal")
				}
				ok, err := prompt.New(app.In(), cmd.ErrOrStderr()).Confirm("Forget every learned mapping?", false)
				if err != nil {
					return err
				}
				if !ok {
					cmd.PrintErrln("Canceled, nothing was changed.")
					return nil
				}
			}

			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.Classifier().Reset(); err != nil {
				return err
			}
			cmd.PrintErrln("Learned mappings reset.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func table(mappings []equipment.LearnedMapping) output.Data {
	data := output.Data{
		Headers: []string{"Block", "Type", "Uses", "Confirmed", "Confidence", "Last Used"},
		ColumnAlignment: []output.Align{
			output.AlignLeft, output.AlignLeft, output.AlignRight,
			output.AlignCenter, output.AlignRight, output.AlignLeft,
		},
		WideFrom: 5,
	}
	for _, m := range mappings {
		data.Rows = append(data.Rows, []string{
			m.BlockIdentifier,
			m.EquipmentType,
			strconv.Itoa(m.UsageCount),
			strconv.FormatBool(m.ConfirmedByUser),
			cmdutil.Percent(m.ConfidenceScore),
			m.LastUsedAt.Format("2006-01-02"),
		})
	}
	return data
}
