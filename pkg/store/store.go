// Package store defines the system-of-record contract used by the
// reconciliation engine. Backends live in the memory, sqlite and postgres
// subpackages.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
)

// Reader is the read side shared by a Store and an open transaction.
type Reader interface {
	// FindByProject returns the project's active records ordered by tag.
	FindByProject(ctx context.Context, projectID string) ([]equipment.Record, error)

	// MaxSequenceForPrefix returns the highest sequence number used by any
	// record in the project, active or not, whose tag starts with prefix.
	MaxSequenceForPrefix(ctx context.Context, projectID, prefix string) (int, error)
}

// Store is a transactional system of record for projects and equipment.
type Store interface {
	Reader

	CreateProject(ctx context.Context, p equipment.Project) (equipment.Project, error)
	// Project looks a project up by ID, or by name case-insensitively.
	Project(ctx context.Context, idOrName string) (equipment.Project, error)
	Projects(ctx context.Context) ([]equipment.Project, error)
	// SetTagMode changes a project's tag mode. It fails once the project
	// has any records.
	SetTagMode(ctx context.Context, projectID string, mode equipment.TagMode) error

	// Begin opens the transaction that holds every mutation of one pass.
	Begin(ctx context.Context) (Tx, error)

	// Runs lists a project's run summaries, newest first.
	Runs(ctx context.Context, projectID string) ([]equipment.RunSummary, error)

	Close() error
}

// Tx is an all-or-nothing batch of store mutations. Reads through a Tx see
// its own pending writes.
type Tx interface {
	Reader

	// Add inserts a record. A tag already used by an active record of the
	// project fails with a DuplicateTagError.
	Add(ctx context.Context, r *equipment.Record) error

	// Update replaces an existing record by ID.
	Update(ctx context.Context, r *equipment.Record) error

	// RecordRun stores the summary of the current pass.
	RecordRun(ctx context.Context, run equipment.RunSummary) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// PrepareProject validates p and fills its ID, mode and creation time.
func PrepareProject(p equipment.Project, now time.Time) (equipment.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, errors.NewValidationError("name", p.Name, "project name is required")
	}
	mode, err := equipment.ParseTagMode(string(p.TagMode))
	if err != nil {
		return p, errors.NewValidationError("tag_mode", p.TagMode, err.Error())
	}
	p.TagMode = mode
	if p.ID == "" {
		p.ID = equipment.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now.UTC()
	}
	return p, nil
}

// PrepareRecord validates r before a write and fills missing identity and
// timestamps.
func PrepareRecord(r *equipment.Record, now time.Time) error {
	if r == nil {
		return errors.NewValidationError("record", nil, "record is nil")
	}
	if r.ProjectID == "" {
		return errors.NewValidationError("project_id", r.ProjectID, "record has no project")
	}
	r.TagNumber = strings.TrimSpace(r.TagNumber)
	if r.TagNumber == "" {
		return errors.NewValidationError("tag_number", r.TagNumber, "record has no tag number")
	}
	if r.ID == "" {
		r.ID = equipment.NewID()
	}
	if err := r.ValidateLinks(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	if r.ModifiedAt.IsZero() {
		r.ModifiedAt = r.CreatedAt
	}
	return nil
}

// PrepareRun fills a run summary's ID.
func PrepareRun(run equipment.RunSummary) (equipment.RunSummary, error) {
	if run.ProjectID == "" {
		return run, errors.NewValidationError("project_id", run.ProjectID, "run has no project")
	}
	if run.ID == "" {
		run.ID = equipment.NewID()
	}
	return run, nil
}

// TagModeLocked is the error returned by SetTagMode when records exist.
func TagModeLocked(projectID string) error {
	return errors.NewValidationError("tag_mode", projectID, "tag mode is fixed once the project has tags")
}
