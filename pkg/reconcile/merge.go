package reconcile

import (
	"github.com/agentstation/tagsync/pkg/equipment"
)

// ChangeType is the kind of change applied.
type ChangeType string

// Change types.
const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeMarker ChangeType = "marker"
)

// Target is the side a change was written to.
type Target string

// Targets.
const (
	TargetStore   Target = "store"
	TargetDrawing Target = "drawing"
)

// Change is one applied modification.
type Change struct {
	Type     ChangeType `json:"type" yaml:"type"`
	Target   Target     `json:"target" yaml:"target"`
	Tag      string     `json:"tag" yaml:"tag"`
	Handle   string     `json:"handle,omitempty" yaml:"handle,omitempty"`
	Field    string     `json:"field,omitempty" yaml:"field,omitempty"`
	OldValue string     `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue string     `json:"new_value,omitempty" yaml:"new_value,omitempty"`
}

// attributeWrite is a store value to be written onto a drawing attribute.
type attributeWrite struct {
	Field     string
	Attribute string
	OldValue  string
	NewValue  string
}

// storeChanges lists the record fields SourceToStore would overwrite. A
// store field changes only when the source value is non-empty and differs.
func storeChanges(rec equipment.Record, obs equipment.Observation, fields FieldReader) []Change {
	var changes []Change
	for _, f := range equipment.MergeFields {
		_, src := fields.FieldValue(obs, f)
		if src == "" || src == rec.Field(f) {
			continue
		}
		changes = append(changes, Change{
			Type:     ChangeUpdate,
			Target:   TargetStore,
			Tag:      rec.TagNumber,
			Handle:   obs.SourceHandle,
			Field:    f,
			OldValue: rec.Field(f),
			NewValue: src,
		})
	}
	return changes
}

// sourceWrites lists the attributes StoreToSource would write. The layer is
// an object property rather than an attribute and is never written back.
func sourceWrites(rec equipment.Record, obs equipment.Observation, fields FieldReader) []attributeWrite {
	var writes []attributeWrite
	for _, f := range equipment.MergeFields {
		if f == equipment.FieldLayer {
			continue
		}
		val := rec.Field(f)
		if val == "" {
			continue
		}
		attr, src := fields.FieldValue(obs, f)
		if attr == "" || src == val {
			continue
		}
		writes = append(writes, attributeWrite{Field: f, Attribute: attr, OldValue: src, NewValue: val})
	}
	return writes
}

// applyStoreChanges sets the changed fields on rec.
func applyStoreChanges(rec *equipment.Record, changes []Change) {
	for _, c := range changes {
		rec.SetField(c.Field, c.NewValue)
	}
}
