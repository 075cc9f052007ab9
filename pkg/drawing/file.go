package drawing

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// document is the on-disk layout of a drawing export.
type document struct {
	Drawing string   `yaml:"drawing"`
	Objects []Object `yaml:"objects"`
}

// FileHost serves a drawing exported from the CAD editor as YAML. Every
// successful write is flushed to disk on its own, so one failed object
// never holds back the others.
type FileHost struct {
	*MemoryHost
	path string
}

// OpenFile loads a drawing export. Any read or parse failure is a
// DrawingAccessError.
func OpenFile(path string) (*FileHost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewDrawingAccessError(path, errors.StageLoad, errors.WrapIO("read", path, err))
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewDrawingAccessError(path, errors.StageLoad, errors.WrapParse("yaml", path, err))
	}

	name := doc.Drawing
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &FileHost{
		MemoryHost: NewMemoryHost(name, doc.Objects...),
		path:       path,
	}, nil
}

// Path returns the backing file.
func (f *FileHost) Path() string {
	return f.path
}

// WriteAttribute implements Host.
func (f *FileHost) WriteAttribute(ctx context.Context, handle, name, value string) error {
	if err := f.MemoryHost.WriteAttribute(ctx, handle, name, value); err != nil {
		return err
	}
	return f.flush()
}

// WriteMarker implements Host.
func (f *FileHost) WriteMarker(ctx context.Context, handle string, marker equipment.Marker) error {
	if err := f.MemoryHost.WriteMarker(ctx, handle, marker); err != nil {
		return err
	}
	return f.flush()
}

// flush rewrites the export through a temporary file and rename.
func (f *FileHost) flush() error {
	f.mu.RLock()
	doc := document{Drawing: f.name, Objects: make([]Object, 0, len(f.order))}
	for _, handle := range f.order {
		doc.Objects = append(doc.Objects, cloneObject(*f.objects[handle]))
	}
	f.mu.RUnlock()

	data, err := yaml.MarshalWithOptions(doc, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return errors.WrapParse("yaml", f.path, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.WrapIO("rename", f.path, err)
	}
	return nil
}
