package drawing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// MemoryHost is an in-memory drawing. Writes are applied immediately and
// each object write is independent of the others.
type MemoryHost struct {
	mu         sync.RWMutex
	name       string
	objects    map[string]*Object
	order      []string
	highlights map[string]bool

	// ReadErr, when set, is returned by ExtractRaw.
	ReadErr error
	// FailWrites lists handles whose writes fail.
	FailWrites map[string]error
}

// NewMemoryHost creates a drawing holding objects.
func NewMemoryHost(name string, objects ...Object) *MemoryHost {
	h := &MemoryHost{
		name:       name,
		objects:    make(map[string]*Object, len(objects)),
		highlights: make(map[string]bool),
		FailWrites: make(map[string]error),
	}
	for _, o := range objects {
		h.Add(o)
	}
	return h
}

// Add inserts or replaces an object.
func (h *MemoryHost) Add(o Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.objects[o.Handle]; !exists {
		h.order = append(h.order, o.Handle)
	}
	c := cloneObject(o)
	h.objects[o.Handle] = &c
}

// Name implements Host.
func (h *MemoryHost) Name() string {
	return h.name
}

// ExtractRaw implements Host.
func (h *MemoryHost) ExtractRaw(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.ReadErr != nil {
		return nil, h.ReadErr
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Object, 0, len(h.order))
	for _, handle := range h.order {
		out = append(out, cloneObject(*h.objects[handle]))
	}
	return out, nil
}

// Object returns a copy of the object with the given handle.
func (h *MemoryHost) Object(handle string) (Object, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	o, ok := h.objects[handle]
	if !ok {
		return Object{}, false
	}
	return cloneObject(*o), true
}

// WriteAttribute implements Host. An existing attribute is matched
// case-insensitively and keeps its spelling.
func (h *MemoryHost) WriteAttribute(_ context.Context, handle, name, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, err := h.writable(handle)
	if err != nil {
		return err
	}
	if o.Attributes == nil {
		o.Attributes = make(map[string]string)
	}
	for k := range o.Attributes {
		if strings.EqualFold(k, name) {
			o.Attributes[k] = value
			return nil
		}
	}
	o.Attributes[name] = value
	return nil
}

// WriteMarker implements Host.
func (h *MemoryHost) WriteMarker(_ context.Context, handle string, marker equipment.Marker) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, err := h.writable(handle)
	if err != nil {
		return err
	}
	o.Marker = EncodeMarker(marker)
	return nil
}

// Highlight implements Highlighter. Marks are kept beside the drawing and
// never written into it.
func (h *MemoryHost) Highlight(_ context.Context, handle string, tagged bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.objects[handle]; !ok {
		return errors.NewNotFoundError("object", handle)
	}
	h.highlights[handle] = tagged
	return nil
}

// Highlights returns the visual marks set by Highlight, keyed by handle.
func (h *MemoryHost) Highlights() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.highlights))
	for k, v := range h.highlights {
		out[k] = v
	}
	return out
}

// Objects returns copies of every object, sorted by handle.
func (h *MemoryHost) Objects() []Object {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Object, 0, len(h.objects))
	for _, o := range h.objects {
		out = append(out, cloneObject(*o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (h *MemoryHost) writable(handle string) (*Object, error) {
	if err := h.FailWrites[handle]; err != nil {
		return nil, fmt.Errorf("writing object %s: %w", handle, err)
	}
	o, ok := h.objects[handle]
	if !ok {
		return nil, errors.NewNotFoundError("object", handle)
	}
	return o, nil
}
