// Package project provides the project management commands.
package project

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/equipment"
)

// NewCommand creates the project command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		GroupID: "management",
		Short:   "Manage projects and their tag format",
		Long: `Projects group the equipment records of one plant or unit.

Each project uses one tag format, custom (PMP-001) or hierarchical
(100-PMP-001). The format can be changed only while the project has no
equipment.`,
		Example: `  tagsync project create "Unit 100" --mode hierarchical
  tagsync project list
  tagsync project set-mode "Unit 100" custom
  tagsync project runs "Unit 100"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown subcommand: %s", args[0])
		},
	}

	cmd.AddCommand(newCreateCommand(app))
	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newSetModeCommand(app))
	cmd.AddCommand(newRunsCommand(app))

	return cmd
}

func newCreateCommand(app appcontext.Interface) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagMode, err := equipment.ParseTagMode(mode)
			if err != nil {
				return err
			}

			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}

			project, err := client.Store().CreateProject(cmd.Context(), equipment.Project{
				Name:    args[0],
				TagMode: tagMode,
			})
			if err != nil {
				return err
			}

			app.Logger().Info().
				Str("project", project.Name).
				Str("mode", project.TagMode.String()).
				Msg("Project created")

			return cmdutil.Print(cmd, app, project, projectsTable([]equipment.Project{project}))
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(equipment.TagModeCustom),
		"Tag format: custom or hierarchical")

	return cmd
}

func newListCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}

			projects, err := client.Store().Projects(cmd.Context())
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, app, projects, projectsTable(projects))
		},
	}
}

func newSetModeCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "set-mode PROJECT MODE",
		Short: "Change a project's tag format",
		Long: `Change a project's tag format. This is refused once the project
holds any equipment, since existing tags would no longer validate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := equipment.ParseTagMode(args[1])
			if err != nil {
				return err
			}

			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}

			project, err := client.Store().Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := client.Store().SetTagMode(cmd.Context(), project.ID, mode); err != nil {
				return err
			}
			project.TagMode = mode

			return cmdutil.Print(cmd, app, project, projectsTable([]equipment.Project{project}))
		},
	}
}

func newRunsCommand(app appcontext.Interface) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs PROJECT",
		Short: "List reconciliation runs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client(cmd.Context())
			if err != nil {
				return err
			}

			project, err := client.Store().Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			runs, err := client.Store().Runs(cmd.Context(), project.ID)
			if err != nil {
				return err
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}

			return cmdutil.Print(cmd, app, runs, runsTable(runs))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Limit number of runs")

	return cmd
}

func projectsTable(projects []equipment.Project) output.Data {
	data := output.Data{
		Headers:  []string{"Name", "Tag Mode", "Created", "ID"},
		WideFrom: 3,
	}
	for _, p := range projects {
		data.Rows = append(data.Rows, []string{
			p.Name, p.TagMode.String(), p.CreatedAt.Format("2006-01-02 15:04"), p.ID,
		})
	}
	return data
}

func runsTable(runs []equipment.RunSummary) output.Data {
	data := output.Data{
		Headers: []string{"Started", "Drawing", "Direction", "Added", "Updated", "In Drawing", "Missing", "Warnings", "ID"},
		ColumnAlignment: []output.Align{
			output.AlignLeft, output.AlignLeft, output.AlignLeft,
			output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight,
			output.AlignLeft,
		},
		WideFrom: 8,
	}
	for _, r := range runs {
		data.Rows = append(data.Rows, []string{
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.DrawingID,
			r.Direction,
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.UpdatedInSource),
			strconv.Itoa(r.Missing),
			strconv.Itoa(r.Warnings),
			r.ID,
		})
	}
	return data
}
