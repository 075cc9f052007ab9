package classify

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// MappingStore persists the learned mapping table.
type MappingStore interface {
	Load() (map[string]equipment.LearnedMapping, error)
	Save(mappings []equipment.LearnedMapping) error
}

// mappingFile is the on-disk document.
type mappingFile struct {
	Mappings []equipment.LearnedMapping `yaml:"mappings"`
}

// FileStore keeps mappings in a human-readable YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the table. A missing file is an empty table.
func (s *FileStore) Load() (map[string]equipment.LearnedMapping, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]equipment.LearnedMapping{}, nil
		}
		return nil, errors.WrapIO("read", s.path, err)
	}
	return Decode(data)
}

// Save writes the table atomically, sorted by block identifier.
func (s *FileStore) Save(mappings []equipment.LearnedMapping) error {
	data, err := Encode(mappings)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
			return errors.WrapIO("create", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapIO("rename", s.path, err)
	}
	return nil
}

// Encode serializes mappings as YAML.
func Encode(mappings []equipment.LearnedMapping) ([]byte, error) {
	sorted := append([]equipment.LearnedMapping(nil), mappings...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BlockIdentifier < sorted[j].BlockIdentifier
	})
	data, err := yaml.MarshalWithOptions(mappingFile{Mappings: sorted}, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	return data, nil
}

// Decode parses a YAML mapping document, keying entries by normalized
// block identifier. Later duplicates replace earlier ones.
func Decode(data []byte) (map[string]equipment.LearnedMapping, error) {
	var doc mappingFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	out := make(map[string]equipment.LearnedMapping, len(doc.Mappings))
	for _, m := range doc.Mappings {
		key := equipment.NormalizeBlock(m.BlockIdentifier)
		if key == "" {
			continue
		}
		m.BlockIdentifier = key
		out[key] = m
	}
	return out, nil
}

// memoryStore keeps the table in process; used when no file is configured.
type memoryStore struct {
	mappings map[string]equipment.LearnedMapping
}

// NewMemoryStore returns a non-durable MappingStore.
func NewMemoryStore() MappingStore {
	return &memoryStore{mappings: map[string]equipment.LearnedMapping{}}
}

func (s *memoryStore) Load() (map[string]equipment.LearnedMapping, error) {
	out := make(map[string]equipment.LearnedMapping, len(s.mappings))
	for k, v := range s.mappings {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) Save(mappings []equipment.LearnedMapping) error {
	s.mappings = make(map[string]equipment.LearnedMapping, len(mappings))
	for _, m := range mappings {
		s.mappings[m.BlockIdentifier] = m
	}
	return nil
}
