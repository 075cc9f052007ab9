// Package prompt asks the operator questions on the terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// Prompter reads answers from in and writes questions to out.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a Prompter.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer, or def when the
// answer is blank.
func (p *Prompter) Ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	response, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || response == "") {
		if err == io.EOF {
			return "", fmt.Errorf("input closed: %w", errors.ErrCanceled)
		}
		return "", errors.WrapIO("read", "stdin", err)
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return def, nil
	}
	return response, nil
}

// Confirm asks a yes/no question. A blank answer returns def.
func (p *Prompter) Confirm(question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s] ", question, hint)

	response, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || response == "") {
		return false, fmt.Errorf("input closed: %w", errors.ErrCanceled)
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	case "":
		return def, nil
	default:
		return false, nil
	}
}

// Chooser returns a reconcile.Chooser that prints the plan and asks which
// direction to apply. An empty plan is cancelled without asking.
func (p *Prompter) Chooser() reconcile.Chooser {
	return reconcile.ChooserFunc(func(_ context.Context, plan *reconcile.Plan) (reconcile.Direction, error) {
		p.Summary(plan)
		if plan.IsEmpty() {
			fmt.Fprintln(p.out, "Nothing to synchronize.")
			return reconcile.Cancel, nil
		}

		for {
			answer, err := p.Ask("Direction (store, drawing, both, cancel)", "cancel")
			if err != nil {
				return reconcile.Cancel, err
			}
			d, err := parseAnswer(answer)
			if err == nil {
				return d, nil
			}
			fmt.Fprintln(p.out, err)
		}
	})
}

// Summary prints what each direction would change.
func (p *Prompter) Summary(plan *reconcile.Plan) {
	fmt.Fprintf(p.out, "\nDrawing %s, project %s\n", plan.DrawingID, plan.Project.Name)
	fmt.Fprintf(p.out, "  New in drawing:     %d\n", len(plan.NewInSource))
	fmt.Fprintf(p.out, "  Missing in drawing: %d\n", len(plan.MissingInSource))
	fmt.Fprintf(p.out, "  Matched:            %d\n", len(plan.MatchedBoth))
	if len(plan.Collisions) > 0 {
		fmt.Fprintf(p.out, "  Duplicate keys:     %d\n", len(plan.Collisions))
	}
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  store    drawing to store   %d change(s)\n", plan.Count(reconcile.SourceToStore))
	fmt.Fprintf(p.out, "  drawing  store to drawing   %d change(s)\n", plan.Count(reconcile.StoreToSource))
	fmt.Fprintf(p.out, "  both                        %d change(s)\n", plan.Count(reconcile.Both))
	fmt.Fprintln(p.out)
}

func parseAnswer(answer string) (reconcile.Direction, error) {
	switch strings.ToLower(answer) {
	case "store", "s":
		return reconcile.SourceToStore, nil
	case "drawing", "d":
		return reconcile.StoreToSource, nil
	case "b":
		return reconcile.Both, nil
	case "c", "q":
		return reconcile.Cancel, nil
	}
	return reconcile.ParseDirection(answer)
}

// AcceptType returns the equipment type to use for a block. A suggestion
// at or above threshold is accepted without asking and is not reported as
// confirmed. Otherwise the operator is asked; accepting or typing a type
// counts as confirmation.
func (p *Prompter) AcceptType(block, suggested string, confidence, threshold float64) (string, bool, error) {
	if suggested != "" && confidence >= threshold {
		return suggested, false, nil
	}

	fmt.Fprintf(p.out, "Block %s looks like %s (confidence %.0f%%).\n", block, suggested, confidence*100)
	answer, err := p.Ask("Equipment type", suggested)
	if err != nil {
		return "", false, err
	}
	if answer == "" {
		return "", false, errors.NewValidationError("equipment_type", answer, "equipment type is required")
	}
	return answer, true, nil
}
