package cmdutil

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/tagsync/internal/appcontext"
	"github.com/agentstation/tagsync/internal/cmd/output"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// ResultView is the structured form of a pass result.
type ResultView struct {
	*reconcile.Result
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ResultTable lists the changes of a pass, one row per change.
func ResultTable(res *reconcile.Result) output.Data {
	data := output.Data{
		Headers:  []string{"Change", "Target", "Tag", "Handle", "Field", "Old", "New"},
		WideFrom: 4,
	}
	for _, c := range res.Changes {
		data.Rows = append(data.Rows, []string{
			string(c.Type), string(c.Target), c.Tag, c.Handle, c.Field, c.OldValue, c.NewValue,
		})
	}
	for _, r := range res.Rejected {
		data.Rows = append(data.Rows, []string{"rejected", "", r.Tag, r.Handle, "", "", r.Reason})
	}
	return data
}

// PrintResult prints a pass result. Table output is followed by the
// summary and any warnings on stderr.
func PrintResult(cmd *cobra.Command, app appcontext.Interface, res *reconcile.Result) error {
	view := ResultView{Result: res, Warnings: res.WarningMessages()}
	if err := Print(cmd, app, view, ResultTable(res)); err != nil {
		return err
	}
	if IsStructured(app) {
		return nil
	}

	cmd.PrintErrln()
	cmd.PrintErrln(res.Summary())
	for _, warning := range view.Warnings {
		cmd.PrintErrln("warning: " + warning)
	}
	return nil
}

// Percent formats a confidence between 0 and 1.
func Percent(f float64) string {
	return strconv.Itoa(int(f*100+0.5)) + "%"
}
