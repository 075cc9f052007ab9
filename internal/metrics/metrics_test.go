package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

func samplePass() *reconcile.Result {
	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return &reconcile.Result{
		ProjectID:       "p1",
		DrawingID:       "unit-100.dwg",
		Direction:       reconcile.Both,
		Added:           2,
		Updated:         1,
		UpdatedInSource: 3,
		MissingInSource: []string{"TNK-001"},
		Warnings:        []error{errors.New("locked")},
		StartedAt:       start,
		FinishedAt:      start.Add(2 * time.Second),
	}
}

func TestObservePass(t *testing.T) {
	r := New()
	r.ObservePass(samplePass())
	r.ObservePass(samplePass())

	assert.Equal(t, 2.0, testutil.ToFloat64(r.passes.WithLabelValues("p1", "Both")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.changes.WithLabelValues("p1", "added")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.changes.WithLabelValues("p1", "updated_drawing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.missing.WithLabelValues("p1", "unit-100.dwg")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.warnings.WithLabelValues("p1")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.passDuration))
}

func TestObserveFailure(t *testing.T) {
	r := New()
	r.ObserveFailure(errors.StageCommit)
	r.ObserveFailure(errors.StageCommit)
	r.ObserveFailure(errors.StageExtract)

	expected := `
# HELP tagsync_pass_failures_total Total number of failed reconciliation passes
# TYPE tagsync_pass_failures_total counter
tagsync_pass_failures_total{stage="commit"} 2
tagsync_pass_failures_total{stage="extract"} 1
`
	require.NoError(t, testutil.CollectAndCompare(r.failures, strings.NewReader(expected)))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObservePass(samplePass())

	path := filepath.Join(t.TempDir(), "textfile", "tagsync.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tagsync_passes_total{direction="Both",project="p1"} 1`)
	assert.Contains(t, string(data), "tagsync_last_success_timestamp_seconds")
}
