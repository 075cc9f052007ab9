// Package drawing isolates the CAD host behind a narrow interface. The
// extractor and reconciliation engine only see Host, so an in-memory host
// or a YAML drawing export can stand in for the live editor process.
package drawing

import (
	"context"
	"time"

	"github.com/agentstation/tagsync/pkg/equipment"
)

// Marker payload keys as stored on an object.
const (
	MarkerKeyName      = "marker"
	MarkerKeyTimestamp = "timestamp"
	MarkerKeyTag       = "tag"
)

// Object is a raw block reference as the host reports it. The marker is
// kept as an opaque key/value payload; the extractor parses it.
type Object struct {
	Handle     string            `json:"handle" yaml:"handle"`
	BlockName  string            `json:"block" yaml:"block"`
	Position   equipment.Point   `json:"position" yaml:"position"`
	Rotation   float64           `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Scale      equipment.Point   `json:"scale" yaml:"scale"`
	Layer      string            `json:"layer,omitempty" yaml:"layer,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Marker     map[string]string `json:"marker,omitempty" yaml:"marker,omitempty"`
}

// Host is the drawing-side collaborator.
type Host interface {
	// Name identifies the drawing; it becomes a record's source drawing id.
	Name() string

	// ExtractRaw returns every block reference in the drawing.
	ExtractRaw(ctx context.Context) ([]Object, error)

	// WriteAttribute sets one attribute value on an object.
	WriteAttribute(ctx context.Context, handle, name, value string) error

	// WriteMarker stamps the tagged marker on an object.
	WriteMarker(ctx context.Context, handle string, marker equipment.Marker) error
}

// Highlighter is implemented by hosts that can visually mark objects
// without modifying the drawing.
type Highlighter interface {
	Highlight(ctx context.Context, handle string, tagged bool) error
}

// EncodeMarker converts a marker into its stored payload.
func EncodeMarker(m equipment.Marker) map[string]string {
	return map[string]string{
		MarkerKeyName:      m.Name,
		MarkerKeyTimestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		MarkerKeyTag:       m.Tag,
	}
}

func cloneObject(o Object) Object {
	c := o
	c.Attributes = cloneMap(o.Attributes)
	c.Marker = cloneMap(o.Marker)
	return c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
