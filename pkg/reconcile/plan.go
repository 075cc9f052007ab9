package reconcile

import (
	"sort"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/extract"
)

// FieldReader reads merge-field values off an observation. The extractor
// implements it using its attribute synonyms.
type FieldReader interface {
	FieldValue(obs equipment.Observation, field string) (attr, value string)
}

// Collision reports observations that share a fallback key. Only the first
// handle takes part in the pass.
type Collision struct {
	Key     string   `json:"key" yaml:"key"`
	Handles []string `json:"handles" yaml:"handles"`
}

// Plan is the diff between the drawing and the store for one pass. It is
// never persisted.
type Plan struct {
	Project   equipment.Project `json:"project" yaml:"project"`
	DrawingID string            `json:"drawing_id" yaml:"drawing_id"`
	Stats     extract.Stats     `json:"extraction" yaml:"extraction"`

	NewInSource     []string    `json:"new_in_source" yaml:"new_in_source"`
	MissingInSource []string    `json:"missing_in_source" yaml:"missing_in_source"`
	MatchedBoth     []string    `json:"matched_both" yaml:"matched_both"`
	Collisions      []Collision `json:"collisions,omitempty" yaml:"collisions,omitempty"`

	// StoreUpdates counts matched keys whose store record would change
	// under SourceToStore; SourceUpdates counts matched keys whose drawing
	// object would change under StoreToSource.
	StoreUpdates  int `json:"store_updates" yaml:"store_updates"`
	SourceUpdates int `json:"source_updates" yaml:"source_updates"`

	observations map[string]equipment.Observation
	records      map[string]equipment.Record
}

// Diff computes the plan for a set of active records and observations of
// one drawing. Records are keyed by upper-cased tag, observations by
// Observation.Key. An observation without an explicit tag that is the
// source object of a record of this drawing takes that record's key.
func Diff(drawingID string, records []equipment.Record, observations []equipment.Observation, fields FieldReader) *Plan {
	p := &Plan{
		DrawingID:    drawingID,
		observations: make(map[string]equipment.Observation, len(observations)),
		records:      make(map[string]equipment.Record, len(records)),
	}

	byHandle := map[string]string{}
	for _, r := range records {
		if !r.IsActive {
			continue
		}
		key := equipment.NormalizeTag(r.TagNumber)
		p.records[key] = r
		if r.SourceHandle != nil && *r.SourceHandle != "" && equipment.Deref(r.SourceDrawingID) == drawingID {
			byHandle[*r.SourceHandle] = key
		}
	}

	collisions := map[string]*Collision{}
	var collisionOrder []string
	for _, obs := range observations {
		key := obs.Key()
		if obs.ExplicitTag() == "" {
			if recKey, ok := byHandle[obs.SourceHandle]; ok {
				key = recKey
			}
		}
		if first, ok := p.observations[key]; ok {
			c, seen := collisions[key]
			if !seen {
				c = &Collision{Key: key, Handles: []string{first.SourceHandle}}
				collisions[key] = c
				collisionOrder = append(collisionOrder, key)
			}
			c.Handles = append(c.Handles, obs.SourceHandle)
			continue
		}
		p.observations[key] = obs
	}
	for _, key := range collisionOrder {
		p.Collisions = append(p.Collisions, *collisions[key])
	}

	for key, obs := range p.observations {
		rec, ok := p.records[key]
		if !ok {
			p.NewInSource = append(p.NewInSource, key)
			continue
		}
		p.MatchedBoth = append(p.MatchedBoth, key)
		if len(storeChanges(rec, obs, fields)) > 0 {
			p.StoreUpdates++
		}
		if len(sourceWrites(rec, obs, fields)) > 0 {
			p.SourceUpdates++
		}
	}
	for key := range p.records {
		if _, ok := p.observations[key]; !ok {
			p.MissingInSource = append(p.MissingInSource, key)
		}
	}

	sort.Strings(p.NewInSource)
	sort.Strings(p.MissingInSource)
	sort.Strings(p.MatchedBoth)
	return p
}

// Observation returns the observation kept for key.
func (p *Plan) Observation(key string) (equipment.Observation, bool) {
	o, ok := p.observations[key]
	return o, ok
}

// MissingTags returns the store tag numbers absent from the drawing.
func (p *Plan) MissingTags() []string {
	out := make([]string, 0, len(p.MissingInSource))
	for _, key := range p.MissingInSource {
		out = append(out, p.records[key].TagNumber)
	}
	return out
}

// Record returns the store record for key.
func (p *Plan) Record(key string) (equipment.Record, bool) {
	r, ok := p.records[key]
	return r, ok
}

// Count returns how many objects or records the direction would touch.
func (p *Plan) Count(d Direction) int {
	switch d {
	case SourceToStore:
		return len(p.NewInSource) + p.StoreUpdates
	case StoreToSource:
		return p.SourceUpdates
	case Both:
		return len(p.NewInSource) + p.StoreUpdates + p.SourceUpdates
	default:
		return 0
	}
}

// IsEmpty reports whether the plan has nothing to add or update.
func (p *Plan) IsEmpty() bool {
	return len(p.NewInSource) == 0 && p.StoreUpdates == 0 && p.SourceUpdates == 0
}
