package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/tagsync/pkg/equipment"
)

// Rejection is a drawing object left out of the store because its explicit
// tag failed validation or was already taken.
type Rejection struct {
	Handle     string `json:"handle" yaml:"handle"`
	Block      string `json:"block" yaml:"block"`
	Tag        string `json:"tag" yaml:"tag"`
	Reason     string `json:"reason" yaml:"reason"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// Result represents the outcome of one reconciliation pass.
type Result struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	ProjectID string    `json:"project_id" yaml:"project_id"`
	DrawingID string    `json:"drawing_id" yaml:"drawing_id"`
	Direction Direction `json:"direction" yaml:"direction"`

	// Counts
	Added           int `json:"added_to_store" yaml:"added_to_store"`
	Updated         int `json:"updated_in_store" yaml:"updated_in_store"`
	UpdatedInSource int `json:"updated_in_source" yaml:"updated_in_source"`

	// MissingInSource lists store tags absent from the drawing. They are
	// reported only.
	MissingInSource []string `json:"missing_in_source,omitempty" yaml:"missing_in_source,omitempty"`

	// Records added to the store, in the order they were added.
	Records []equipment.Record `json:"records,omitempty" yaml:"records,omitempty"`

	Changes    []Change    `json:"changes,omitempty" yaml:"changes,omitempty"`
	Rejected   []Rejection `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	Collisions []Collision `json:"collisions,omitempty" yaml:"collisions,omitempty"`

	// Warnings are per-object drawing write failures. They never abort a pass.
	Warnings []error `json:"-" yaml:"-"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// HasWarnings returns true if any drawing write failed.
func (r *Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasChanges returns true if the pass changed either side.
func (r *Result) HasChanges() bool {
	return r.Added > 0 || r.Updated > 0 || r.UpdatedInSource > 0
}

// Duration returns how long the pass took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WarningMessages returns the warnings as strings, for reports.
func (r *Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// Summary returns a one-line human-readable summary.
func (r *Result) Summary() string {
	parts := []string{
		fmt.Sprintf("%d added", r.Added),
		fmt.Sprintf("%d updated in store", r.Updated),
	}
	if r.Direction.writesSource() {
		parts = append(parts, fmt.Sprintf("%d updated in drawing", r.UpdatedInSource))
	}
	if n := len(r.MissingInSource); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing from drawing", n))
	}
	if n := len(r.Rejected); n > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", n))
	}
	if n := len(r.Warnings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", n))
	}
	return fmt.Sprintf("%s: %s", r.Direction, strings.Join(parts, ", "))
}

// RunSummary converts the result to its persisted form.
func (r *Result) RunSummary() equipment.RunSummary {
	return equipment.RunSummary{
		ID:              r.RunID,
		ProjectID:       r.ProjectID,
		DrawingID:       r.DrawingID,
		Direction:       r.Direction.String(),
		Added:           r.Added,
		Updated:         r.Updated,
		UpdatedInSource: r.UpdatedInSource,
		Missing:         len(r.MissingInSource),
		Warnings:        len(r.Warnings),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}
