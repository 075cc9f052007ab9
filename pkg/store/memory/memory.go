// Package memory is an in-process store backend. It is used by tests and
// by the "memory" store driver for dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/tags"
)

var _ store.Store = (*Store)(nil)

// Store keeps projects, records and run summaries in maps.
type Store struct {
	mu       sync.Mutex
	projects map[string]equipment.Project
	records  map[string]equipment.Record
	runs     []equipment.RunSummary
	now      func() time.Time

	// CommitErr, when set, makes every Commit fail and discard the batch.
	CommitErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		projects: map[string]equipment.Project{},
		records:  map[string]equipment.Record{},
		now:      time.Now,
	}
}

// CreateProject implements store.Store.
func (s *Store) CreateProject(_ context.Context, p equipment.Project) (equipment.Project, error) {
	p, err := store.PrepareProject(p, s.now())
	if err != nil {
		return p, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.ID == p.ID || strings.EqualFold(existing.Name, p.Name) {
			return p, fmt.Errorf("project %q: %w", p.Name, errors.ErrAlreadyExists)
		}
	}
	s.projects[p.ID] = p
	return p, nil
}

// Project implements store.Store.
func (s *Store) Project(_ context.Context, idOrName string) (equipment.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[idOrName]; ok {
		return p, nil
	}
	for _, p := range s.projects {
		if strings.EqualFold(p.Name, strings.TrimSpace(idOrName)) {
			return p, nil
		}
	}
	return equipment.Project{}, errors.NewNotFoundError("project", idOrName)
}

// Projects implements store.Store.
func (s *Store) Projects(_ context.Context) ([]equipment.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]equipment.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetTagMode implements store.Store.
func (s *Store) SetTagMode(_ context.Context, projectID string, mode equipment.TagMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return errors.NewNotFoundError("project", projectID)
	}
	for _, r := range s.records {
		if r.ProjectID == projectID {
			return store.TagModeLocked(projectID)
		}
	}
	p.TagMode = mode
	s.projects[projectID] = p
	return nil
}

// FindByProject implements store.Store.
func (s *Store) FindByProject(_ context.Context, projectID string) ([]equipment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeRecords(s.records, projectID), nil
}

// MaxSequenceForPrefix implements store.Store.
func (s *Store) MaxSequenceForPrefix(_ context.Context, projectID, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maxSequence(s.records, projectID, prefix), nil
}

// Runs implements store.Store.
func (s *Store) Runs(_ context.Context, projectID string) ([]equipment.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []equipment.RunSummary
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].ProjectID == projectID {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

// All returns every record of a project, including inactive ones.
func (s *Store) All(projectID string) []equipment.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []equipment.Record
	for _, r := range s.records {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}

// Begin implements store.Store. The transaction works on a private copy of
// the record table that replaces the shared one on commit.
func (s *Store) Begin(_ context.Context) (store.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make(map[string]equipment.Record, len(s.records))
	for k, v := range s.records {
		staged[k] = v
	}
	return &tx{s: s, records: staged}, nil
}

type tx struct {
	s       *Store
	records map[string]equipment.Record
	runs    []equipment.RunSummary
	done    bool
}

func (t *tx) FindByProject(_ context.Context, projectID string) ([]equipment.Record, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	return activeRecords(t.records, projectID), nil
}

func (t *tx) MaxSequenceForPrefix(_ context.Context, projectID, prefix string) (int, error) {
	if t.done {
		return 0, store.ErrTxDone
	}
	return maxSequence(t.records, projectID, prefix), nil
}

func (t *tx) Add(_ context.Context, r *equipment.Record) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := store.PrepareRecord(r, t.s.now()); err != nil {
		return err
	}
	if _, ok := t.records[r.ID]; ok {
		return fmt.Errorf("record %s: %w", r.ID, errors.ErrAlreadyExists)
	}
	if r.IsActive {
		if existing := tags.FindTag(activeRecords(t.records, r.ProjectID), r.TagNumber); existing != nil {
			return errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, existing.ID, errors.StageCommit)
		}
	}
	t.records[r.ID] = *r
	return nil
}

func (t *tx) Update(_ context.Context, r *equipment.Record) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := store.PrepareRecord(r, t.s.now()); err != nil {
		return err
	}
	if _, ok := t.records[r.ID]; !ok {
		return errors.NewNotFoundError("record", r.ID)
	}
	if r.IsActive {
		if existing := tags.FindTag(activeRecords(t.records, r.ProjectID), r.TagNumber); existing != nil && existing.ID != r.ID {
			return errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, existing.ID, errors.StageCommit)
		}
	}
	t.records[r.ID] = *r
	return nil
}

func (t *tx) RecordRun(_ context.Context, run equipment.RunSummary) error {
	if t.done {
		return store.ErrTxDone
	}
	run, err := store.PrepareRun(run)
	if err != nil {
		return err
	}
	t.runs = append(t.runs, run)
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.CommitErr != nil {
		return t.s.CommitErr
	}
	t.s.records = t.records
	t.s.runs = append(t.s.runs, t.runs...)
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return nil
}

func activeRecords(records map[string]equipment.Record, projectID string) []equipment.Record {
	out := make([]equipment.Record, 0)
	for _, r := range records {
		if r.ProjectID == projectID && r.IsActive {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

func maxSequence(records map[string]equipment.Record, projectID, prefix string) int {
	var tagNumbers []string
	for _, r := range records {
		if r.ProjectID == projectID {
			tagNumbers = append(tagNumbers, r.TagNumber)
		}
	}
	return tags.MaxSequence(tagNumbers, prefix)
}

func sortRecords(records []equipment.Record) {
	sort.Slice(records, func(i, j int) bool {
		return strings.ToUpper(records[i].TagNumber) < strings.ToUpper(records[j].TagNumber)
	})
}
