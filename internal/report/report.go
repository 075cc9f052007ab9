// Package report renders a reconciliation result as a Markdown document.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	md "github.com/nao1215/markdown"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

// Write renders res for project to w.
func Write(w io.Writer, project equipment.Project, res *reconcile.Result) error {
	doc := md.NewMarkdown(w)

	doc.H1(fmt.Sprintf("Sync report: %s", project.Name)).LF()
	doc.PlainTextf("Drawing %s, direction %s, run %s.",
		md.Code(res.DrawingID), md.Bold(res.Direction.String()), md.Code(res.RunID)).LF().LF()

	doc.H2("Summary").LF()
	doc.Table(md.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Tag mode", project.TagMode.String()},
			{"Added to store", fmt.Sprint(res.Added)},
			{"Updated in store", fmt.Sprint(res.Updated)},
			{"Updated in drawing", fmt.Sprint(res.UpdatedInSource)},
			{"Missing from drawing", fmt.Sprint(len(res.MissingInSource))},
			{"Rejected", fmt.Sprint(len(res.Rejected))},
			{"Warnings", fmt.Sprint(len(res.Warnings))},
			{"Started", res.StartedAt.Format(time.RFC3339)},
			{"Duration", res.Duration().Round(time.Millisecond).String()},
		},
	}).LF()

	if len(res.Records) > 0 {
		rows := make([][]string, 0, len(res.Records))
		for _, r := range res.Records {
			rows = append(rows, []string{r.TagNumber, r.EquipmentType, equipment.Deref(r.SourceHandle), r.Area, r.Description})
		}
		doc.H2("Added").LF()
		doc.Table(md.TableSet{
			Header: []string{"Tag", "Type", "Handle", "Area", "Description"},
			Rows:   rows,
		}).LF()
	}

	if updates := fieldChanges(res.Changes); len(updates) > 0 {
		doc.H2("Field changes").LF()
		doc.Table(md.TableSet{
			Header: []string{"Side", "Tag", "Field", "Old", "New"},
			Rows:   updates,
		}).LF()
	}

	if len(res.Rejected) > 0 {
		rows := make([][]string, 0, len(res.Rejected))
		for _, r := range res.Rejected {
			rows = append(rows, []string{r.Handle, r.Block, r.Tag, r.Reason, r.Suggestion})
		}
		doc.H2("Rejected").LF()
		doc.Table(md.TableSet{
			Header: []string{"Handle", "Block", "Tag", "Reason", "Suggestion"},
			Rows:   rows,
		}).LF()
	}

	if len(res.MissingInSource) > 0 {
		doc.H2("Missing from drawing").LF()
		doc.PlainText("These records are in the store but not on the drawing. They were not changed.").LF().LF()
		doc.BulletList(res.MissingInSource...).LF()
	}

	if len(res.Collisions) > 0 {
		items := make([]string, 0, len(res.Collisions))
		for _, c := range res.Collisions {
			items = append(items, fmt.Sprintf("%s: handles %s (only the first was reconciled)", md.Code(c.Key), strings.Join(c.Handles, ", ")))
		}
		doc.H2("Collisions").LF()
		doc.BulletList(items...).LF()
	}

	if len(res.Warnings) > 0 {
		doc.H2("Warnings").LF()
		doc.BulletList(res.WarningMessages()...).LF()
	}

	return doc.Build()
}

// WriteFile renders the report to path.
func WriteFile(path string, project equipment.Project, res *reconcile.Result) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := Write(f, project, res); err != nil {
		_ = f.Close()
		return errors.WrapIO("write", path, err)
	}
	return errors.WrapIO("close", path, f.Close())
}

func fieldChanges(changes []reconcile.Change) [][]string {
	var rows [][]string
	for _, c := range changes {
		if c.Type != reconcile.ChangeUpdate {
			continue
		}
		rows = append(rows, []string{string(c.Target), c.Tag, c.Field, c.OldValue, c.NewValue})
	}
	return rows
}
