package equipment

import (
	"sort"
	"strings"
	"time"
)

// Point is a position or scale vector in drawing units.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z,omitempty" yaml:"z,omitempty"`
}

// Marker is the "already tagged" stamp tagsync leaves on a drawing object.
type Marker struct {
	Name      string    `json:"marker" yaml:"marker"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Tag       string    `json:"tag" yaml:"tag"`
}

// Observation is one equipment-like object read from a drawing during a
// single extraction pass. Observations are never persisted.
type Observation struct {
	SourceHandle    string            `json:"source_handle" yaml:"source_handle"`
	BlockIdentifier string            `json:"block" yaml:"block"`
	Position        Point             `json:"position" yaml:"position"`
	Rotation        float64           `json:"rotation" yaml:"rotation"`
	Scale           Point             `json:"scale" yaml:"scale"`
	Layer           string            `json:"layer" yaml:"layer"`
	Attributes      map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	TagAttribute    string            `json:"tag_attribute,omitempty" yaml:"tag_attribute,omitempty"`
	Marker          *Marker           `json:"marker,omitempty" yaml:"marker,omitempty"`
	ExtractedAt     time.Time         `json:"extracted_at" yaml:"extracted_at"`
}

// ExplicitTag returns the tag the drawing already carries for this object:
// the marker tag when present, otherwise the tag attribute value.
func (o Observation) ExplicitTag() string {
	if o.Marker != nil && strings.TrimSpace(o.Marker.Tag) != "" {
		return strings.TrimSpace(o.Marker.Tag)
	}
	return strings.TrimSpace(o.TagAttribute)
}

// IsTagged reports whether the object carries a tagsync marker.
func (o Observation) IsTagged() bool {
	return o.Marker != nil && o.Marker.Tag != ""
}

// Key returns the identity used to match this observation against store
// records: the explicit tag if any, else the raw block identifier.
// Untagged objects sharing a block identifier therefore share a key.
func (o Observation) Key() string {
	if tag := o.ExplicitTag(); tag != "" {
		return NormalizeTag(tag)
	}
	return NormalizeTag(o.BlockIdentifier)
}

// Attribute looks up the first attribute matching any of names. An exact
// match wins; otherwise names compare case-insensitively and the
// lexically smallest present key is used. It returns the attribute name
// actually present.
func (o Observation) Attribute(names ...string) (name, value string, ok bool) {
	var keys []string
	for _, want := range names {
		if v, found := o.Attributes[want]; found {
			return want, v, true
		}
		if keys == nil {
			keys = make([]string, 0, len(o.Attributes))
			for k := range o.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		for _, k := range keys {
			if strings.EqualFold(k, want) {
				return k, o.Attributes[k], true
			}
		}
	}
	return "", "", false
}

// NormalizeTag upper-cases and trims a tag for case-insensitive comparison.
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}
