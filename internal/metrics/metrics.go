// Package metrics records reconciliation pass metrics with Prometheus.
// The CLI runs as a short-lived process, so metrics are written to a
// node_exporter textfile after each command instead of being scraped.
package metrics

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/reconcile"
)

var _ reconcile.Recorder = (*Recorder)(nil)

// Recorder implements reconcile.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	passes          *prometheus.CounterVec
	failures        *prometheus.CounterVec
	changes         *prometheus.CounterVec
	missing         *prometheus.GaugeVec
	warnings        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	lastSuccessTime *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsync_passes_total",
				Help: "Total number of committed reconciliation passes",
			},
			[]string{"project", "direction"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsync_pass_failures_total",
				Help: "Total number of failed reconciliation passes",
			},
			[]string{"stage"},
		),
		changes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsync_changes_total",
				Help: "Records added or updated, by side",
			},
			[]string{"project", "kind"},
		),
		missing: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tagsync_missing_in_drawing",
				Help: "Store records absent from the drawing in the last pass",
			},
			[]string{"project", "drawing"},
		),
		warnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsync_drawing_write_warnings_total",
				Help: "Drawing writes that failed during a pass",
			},
			[]string{"project"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagsync_rejected_objects_total",
				Help: "Drawing objects left out because of an invalid or duplicate tag",
			},
			[]string{"project"},
		),
		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tagsync_pass_duration_seconds",
				Help:    "Duration of reconciliation passes",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"direction"},
		),
		lastSuccessTime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tagsync_last_success_timestamp_seconds",
				Help: "Unix time of the last committed pass",
			},
			[]string{"project"},
		),
	}
}

// ObservePass implements reconcile.Recorder.
func (r *Recorder) ObservePass(res *reconcile.Result) {
	dir := res.Direction.String()
	r.passes.WithLabelValues(res.ProjectID, dir).Inc()
	r.changes.WithLabelValues(res.ProjectID, "added").Add(float64(res.Added))
	r.changes.WithLabelValues(res.ProjectID, "updated_store").Add(float64(res.Updated))
	r.changes.WithLabelValues(res.ProjectID, "updated_drawing").Add(float64(res.UpdatedInSource))
	r.missing.WithLabelValues(res.ProjectID, res.DrawingID).Set(float64(len(res.MissingInSource)))
	r.warnings.WithLabelValues(res.ProjectID).Add(float64(len(res.Warnings)))
	r.rejected.WithLabelValues(res.ProjectID).Add(float64(len(res.Rejected)))
	r.passDuration.WithLabelValues(dir).Observe(res.Duration().Seconds())
	r.lastSuccessTime.WithLabelValues(res.ProjectID).Set(float64(res.FinishedAt.Unix()))
}

// ObserveFailure implements reconcile.Recorder.
func (r *Recorder) ObserveFailure(stage errors.Stage) {
	r.failures.WithLabelValues(stage.String()).Inc()
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current metrics in the Prometheus text format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
