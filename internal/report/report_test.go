package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

func sampleResult() *reconcile.Result {
	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return &reconcile.Result{
		RunID:     "run-1",
		DrawingID: "unit-100.dwg",
		Direction: reconcile.Both,
		Added:     1,
		Updated:   1,
		Records: []equipment.Record{
			{TagNumber: "PMP-002", EquipmentType: "Pump", SourceHandle: equipment.Ptr("B"), Description: "Booster"},
		},
		Changes: []reconcile.Change{
			{Type: reconcile.ChangeAdd, Target: reconcile.TargetStore, Tag: "PMP-002"},
			{Type: reconcile.ChangeUpdate, Target: reconcile.TargetStore, Tag: "PMP-001", Field: "manufacturer", OldValue: "Acme", NewValue: "Flowserve"},
		},
		Rejected:        []reconcile.Rejection{{Handle: "X", Block: "PMP-A", Tag: "PU", Reason: "must be at least 3 characters"}},
		MissingInSource: []string{"TNK-001"},
		Collisions:      []reconcile.Collision{{Key: "PMP-NEW", Handles: []string{"B1", "B2"}}},
		Warnings:        []error{errors.NewPartialApplyWarning("A", "PMP-001", "description", errors.New("locked"))},
		StartedAt:       start,
		FinishedAt:      start.Add(1500 * time.Millisecond),
	}
}

func TestWrite(t *testing.T) {
	var b strings.Builder
	project := equipment.Project{Name: "Unit 100", TagMode: equipment.TagModeCustom}
	require.NoError(t, Write(&b, project, sampleResult()))

	out := b.String()
	assert.Contains(t, out, "# Sync report: Unit 100")
	assert.Contains(t, out, "## Summary")
	assert.Contains(t, out, "PMP-002")
	assert.Contains(t, out, "## Field changes")
	assert.Contains(t, out, "Flowserve")
	assert.Contains(t, out, "## Rejected")
	assert.Contains(t, out, "- TNK-001")
	assert.Contains(t, out, "## Collisions")
	assert.Contains(t, out, "B1, B2")
	assert.Contains(t, out, "## Warnings")
	assert.Contains(t, out, "1.5s")
}

func TestWriteOmitsEmptySections(t *testing.T) {
	var b strings.Builder
	res := &reconcile.Result{Direction: reconcile.SourceToStore}
	require.NoError(t, Write(&b, equipment.Project{Name: "P"}, res))

	out := b.String()
	assert.Contains(t, out, "## Summary")
	assert.NotContains(t, out, "## Added")
	assert.NotContains(t, out, "## Warnings")
	assert.NotContains(t, out, "## Missing from drawing")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, WriteFile(path, equipment.Project{Name: "P"}, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Sync report: P"))

	err = WriteFile(filepath.Join(t.TempDir(), "missing", "report.md"), equipment.Project{}, sampleResult())
	assert.Error(t, err)
}
