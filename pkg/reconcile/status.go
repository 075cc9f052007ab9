package reconcile

import (
	"context"

	"github.com/agentstation/tagsync/pkg/drawing"
	"github.com/agentstation/tagsync/pkg/equipment"
)

// ObjectState is the tagging state of one drawing object.
type ObjectState string

// Object states.
const (
	// StateUntagged objects carry no marker.
	StateUntagged ObjectState = "untagged"
	// StateTagged objects carry a marker but the store record changed after
	// it was written, or no active record uses the marker's tag.
	StateTagged ObjectState = "tagged"
	// StateSynced objects carry a marker at least as new as their record.
	StateSynced ObjectState = "synced"
)

// ObjectStatus is the state of one drawing object.
type ObjectStatus struct {
	Handle string      `json:"handle" yaml:"handle"`
	Block  string      `json:"block" yaml:"block"`
	Tag    string      `json:"tag,omitempty" yaml:"tag,omitempty"`
	State  ObjectState `json:"state" yaml:"state"`
}

// StatusReport summarizes the tagging state of a drawing.
type StatusReport struct {
	ProjectID string         `json:"project_id" yaml:"project_id"`
	DrawingID string         `json:"drawing_id" yaml:"drawing_id"`
	Objects   []ObjectStatus `json:"objects" yaml:"objects"`
	Untagged  int            `json:"untagged" yaml:"untagged"`
	Tagged    int            `json:"tagged" yaml:"tagged"`
	Synced    int            `json:"synced" yaml:"synced"`
	// Highlighted counts objects visually marked by the host.
	Highlighted int      `json:"highlighted" yaml:"highlighted"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Status reports each object's tagging state. With highlight set and a host
// that implements drawing.Highlighter, objects are also marked visually;
// the drawing itself is never modified.
func (e *Engine) Status(ctx context.Context, projectID string, host drawing.Host, highlight bool) (*StatusReport, error) {
	project, err := e.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	observations, _, err := e.extractor.Extract(ctx, host)
	if err != nil {
		return nil, err
	}
	records, err := e.store.FindByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	byTag := make(map[string]equipment.Record, len(records))
	for _, r := range records {
		byTag[equipment.NormalizeTag(r.TagNumber)] = r
	}

	report := &StatusReport{ProjectID: project.ID, DrawingID: host.Name()}
	highlighter, canHighlight := host.(drawing.Highlighter)

	for _, obs := range observations {
		st := ObjectStatus{Handle: obs.SourceHandle, Block: obs.BlockIdentifier, State: StateUntagged}
		if obs.IsTagged() {
			st.Tag = obs.Marker.Tag
			st.State = StateTagged
			if rec, ok := byTag[equipment.NormalizeTag(obs.Marker.Tag)]; ok && !obs.Marker.Timestamp.Before(rec.ModifiedAt) {
				st.State = StateSynced
			}
		}

		switch st.State {
		case StateUntagged:
			report.Untagged++
		case StateTagged:
			report.Tagged++
		case StateSynced:
			report.Synced++
		}
		report.Objects = append(report.Objects, st)

		if highlight && canHighlight {
			if err := highlighter.Highlight(ctx, obs.SourceHandle, st.State != StateUntagged); err != nil {
				report.Warnings = append(report.Warnings, err.Error())
				continue
			}
			report.Highlighted++
		}
	}
	if highlight && !canHighlight {
		e.logger.Warn().Str("drawing", host.Name()).Msg("Drawing host cannot highlight objects")
	}
	return report, nil
}
