// Package sync provides the sync command.
package sync

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/cmdutil"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/internal/cmd/prompt"
	"github.com/agentstation/tagsync/internal/report"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// Flags holds the sync command flags.
type Flags struct {
	*cmdutil.ProjectFlags
	Direction string
	Report    string
	DryRun    bool
}

// NewCommand creates the sync command with app dependencies.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "sync DRAWING",
		GroupID: "core",
		Short:   "Reconcile a drawing with the store",
		Long: `Sync compares the drawing with the project's equipment and applies the
differences in one direction:

  store    drawing values win; new objects are added to the store
  drawing  store values are written onto the drawing's attributes
  both     store first, then drawing, over the combined matches

Without --direction the plan is shown and the direction is asked for.
Store changes are applied in one transaction. Equipment missing from the
drawing is reported, never deleted.`,
		Example: `  tagsync sync unit-100.yaml --project "Unit 100"
  tagsync sync unit-100.yaml -p "Unit 100" --direction store --report sync.md
  tagsync sync unit-100.yaml -p "Unit 100" --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, app, flags, args[0])
		},
	}

	flags.ProjectFlags = cmdutil.AddProjectFlag(cmd)
	cmd.Flags().StringVarP(&flags.Direction, "direction", "d", "",
		"store, drawing, both or cancel (asked for when omitted)")
	cmd.Flags().StringVar(&flags.Report, "report", "", "Write a Markdown report of the pass to this file")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Show the plan without applying it")

	return cmd
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags, path string) error {
	ctx := cmd.Context()
	logger := app.Logger()

	session, err := cmdutil.Open(ctx, app, flags.Project, path)
	if err != nil {
		return err
	}
	engine := session.Client.Engine()

	if flags.DryRun {
		plan, err := engine.Load(ctx, session.Project.ID, session.Drawing)
		if err != nil {
			return err
		}
		return printPlan(cmd, app, plan)
	}

	chooser, err := chooserFor(app, flags.Direction, cmd)
	if err != nil {
		return err
	}

	res, err := engine.Sync(ctx, session.Project.ID, session.Drawing, chooser)
	if errors.IsCanceled(err) {
		cmd.PrintErrln("Canceled, nothing was changed.")
		return nil
	}
	if res == nil {
		return err
	}

	if flags.Report != "" {
		if reportErr := report.WriteFile(flags.Report, session.Project, res); reportErr != nil {
			logger.Warn().Err(reportErr).Str("path", flags.Report).Msg("Failed to write sync report")
		} else {
			logger.Info().Str("path", flags.Report).Msg("Sync report written")
		}
	}

	if printErr := cmdutil.PrintResult(cmd, app, res); printErr != nil && err == nil {
		err = printErr
	}
	return err
}

// chooserFor returns a fixed chooser for an explicit direction and asks
// the operator otherwise.
func chooserFor(app appcontext.Interface, direction string, cmd *cobra.Command) (reconcile.Chooser, error) {
	if direction != "" {
		d, err := parseDirection(direction)
		if err != nil {
			return nil, errors.NewValidationError("direction", direction, err.Error())
		}
		return reconcile.Fixed(d), nil
	}

	if !app.Interactive() {
		return nil, errors.NewValidationError("direction", "", "--direction is required when input is not a terminal")
	}
	return prompt.New(app.In(), cmd.ErrOrStderr()).Chooser(), nil
}

// parseDirection accepts the short names used on the command line.
func parseDirection(s string) (reconcile.Direction, error) {
	switch s {
	case "store":
		return reconcile.SourceToStore, nil
	case "drawing":
		return reconcile.StoreToSource, nil
	}
	return reconcile.ParseDirection(s)
}

// PlanView is the structured form of a plan.
type PlanView struct {
	*reconcile.Plan
	MissingTags []string `json:"missing_tags,omitempty" yaml:"missing_tags,omitempty"`
}

func printPlan(cmd *cobra.Command, app appcontext.Interface, plan *reconcile.Plan) error {
	data := output.Data{Headers: []string{"Key", "Status", "Handle"}}
	for _, key := range plan.NewInSource {
		obs, _ := plan.Observation(key)
		data.Rows = append(data.Rows, []string{key, "new in drawing", obs.SourceHandle})
	}
	for _, key := range plan.MatchedBoth {
		obs, _ := plan.Observation(key)
		data.Rows = append(data.Rows, []string{key, "matched", obs.SourceHandle})
	}
	for _, tag := range plan.MissingTags() {
		data.Rows = append(data.Rows, []string{tag, "missing from drawing", ""})
	}

	if err := cmdutil.Print(cmd, app, PlanView{Plan: plan, MissingTags: plan.MissingTags()}, data); err != nil {
		return err
	}
	if !cmdutil.IsStructured(app) {
		prompt.New(app.In(), cmd.ErrOrStderr()).Summary(plan)
	}
	return nil
}
