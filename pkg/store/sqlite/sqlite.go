// Package sqlite is the embedded system-of-record backend, built on the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/tags"
)

var _ store.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a store.Store backed by an SQLite database file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	db, err := openDB(path, cfg)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject implements store.Store.
func (s *Store) CreateProject(ctx context.Context, p equipment.Project) (equipment.Project, error) {
	p, err := store.PrepareProject(p, s.now())
	if err != nil {
		return p, err
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, name, tag_mode, created_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, string(p.TagMode), formatTime(p.CreatedAt))
		return err
	})
	if isUniqueViolation(err) {
		return p, fmt.Errorf("project %q: %w", p.Name, errors.ErrAlreadyExists)
	}
	if err != nil {
		return p, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// Project implements store.Store.
func (s *Store) Project(ctx context.Context, idOrName string) (equipment.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tag_mode, created_at FROM projects
		 WHERE id = ? OR upper(name) = upper(?)
		 ORDER BY id = ? DESC LIMIT 1`,
		idOrName, strings.TrimSpace(idOrName), idOrName)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return p, errors.NewNotFoundError("project", idOrName)
	}
	return p, err
}

// Projects implements store.Store.
func (s *Store) Projects(ctx context.Context) ([]equipment.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, tag_mode, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []equipment.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetTagMode implements store.Store.
func (s *Store) SetTagMode(ctx context.Context, projectID string, mode equipment.TagMode) error {
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists, records int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return errors.NewNotFoundError("project", projectID)
		}
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM equipment WHERE project_id = ?`, projectID).Scan(&records); err != nil {
			return err
		}
		if records > 0 {
			return store.TagModeLocked(projectID)
		}
		_, err := tx.ExecContext(ctx, `UPDATE projects SET tag_mode = ? WHERE id = ?`, string(mode), projectID)
		return err
	})
}

// FindByProject implements store.Store.
func (s *Store) FindByProject(ctx context.Context, projectID string) ([]equipment.Record, error) {
	return findByProject(ctx, s.db, projectID)
}

// MaxSequenceForPrefix implements store.Store.
func (s *Store) MaxSequenceForPrefix(ctx context.Context, projectID, prefix string) (int, error) {
	return maxSequence(ctx, s.db, projectID, prefix)
}

// Runs implements store.Store.
func (s *Store) Runs(ctx context.Context, projectID string) ([]equipment.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, drawing_id, direction, added, updated, updated_in_source,
		        missing, warnings, started_at, finished_at
		 FROM sync_runs WHERE project_id = ? ORDER BY started_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []equipment.RunSummary
	for rows.Next() {
		var (
			r                 equipment.RunSummary
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.DrawingID, &r.Direction, &r.Added, &r.Updated,
			&r.UpdatedInSource, &r.Missing, &r.Warnings, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{tx: sqlTx, now: s.now}, nil
}

type tx struct {
	tx   *sql.Tx
	now  func() time.Time
	done bool
}

func (t *tx) FindByProject(ctx context.Context, projectID string) ([]equipment.Record, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	return findByProject(ctx, t.tx, projectID)
}

func (t *tx) MaxSequenceForPrefix(ctx context.Context, projectID, prefix string) (int, error) {
	if t.done {
		return 0, store.ErrTxDone
	}
	return maxSequence(ctx, t.tx, projectID, prefix)
}

func (t *tx) Add(ctx context.Context, r *equipment.Record) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := store.PrepareRecord(r, t.now()); err != nil {
		return err
	}
	if r.IsActive {
		if err := t.checkTag(ctx, r); err != nil {
			return err
		}
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO equipment (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordArgs(r)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("record %s: %w", r.ID, errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, "", errors.StageCommit))
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.TagNumber, err)
	}
	return nil
}

func (t *tx) Update(ctx context.Context, r *equipment.Record) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := store.PrepareRecord(r, t.now()); err != nil {
		return err
	}
	if r.IsActive {
		if err := t.checkTag(ctx, r); err != nil {
			return err
		}
	}
	args := recordArgs(r)
	res, err := t.tx.ExecContext(ctx,
		`UPDATE equipment SET project_id = ?, tag_number = ?, equipment_type = ?, description = ?,
		        area = ?, manufacturer = ?, model = ?, layer = ?, status = ?, source_drawing_id = ?,
		        source_block_identifier = ?, source_handle = ?, upstream_id = ?, downstream_id = ?,
		        created_at = ?, modified_at = ?, is_active = ?
		 WHERE id = ?`,
		append(args[1:], r.ID)...)
	if isUniqueViolation(err) {
		return errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, "", errors.StageCommit)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", r.TagNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("record", r.ID)
	}
	return nil
}

// checkTag rejects a tag already used by another active record.
func (t *tx) checkTag(ctx context.Context, r *equipment.Record) error {
	var existing string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM equipment
		 WHERE project_id = ? AND upper(tag_number) = upper(?) AND is_active = 1 AND id <> ?
		 LIMIT 1`,
		r.ProjectID, r.TagNumber, r.ID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return fmt.Errorf("check tag %s: %w", r.TagNumber, err)
	default:
		return errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, existing, errors.StageCommit)
	}
}

func (t *tx) RecordRun(ctx context.Context, run equipment.RunSummary) error {
	if t.done {
		return store.ErrTxDone
	}
	run, err := store.PrepareRun(run)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO sync_runs (id, project_id, drawing_id, direction, added, updated,
		        updated_in_source, missing, warnings, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.DrawingID, run.Direction, run.Added, run.Updated,
		run.UpdatedInSource, run.Missing, run.Warnings, formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	return t.tx.Commit()
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func findByProject(ctx context.Context, q querier, projectID string) ([]equipment.Record, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM equipment
		 WHERE project_id = ? AND is_active = 1
		 ORDER BY upper(tag_number)`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make([]equipment.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func maxSequence(ctx context.Context, q querier, projectID, prefix string) (int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT tag_number FROM equipment
		 WHERE project_id = ? AND substr(upper(tag_number), 1, ?) = upper(?)`,
		projectID, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("query sequence: %w", err)
	}
	defer rows.Close()

	var tagNumbers []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return 0, err
		}
		tagNumbers = append(tagNumbers, tag)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return tags.MaxSequence(tagNumbers, prefix), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (equipment.Project, error) {
	var (
		p       equipment.Project
		mode    string
		created string
	)
	if err := row.Scan(&p.ID, &p.Name, &mode, &created); err != nil {
		return p, err
	}
	p.TagMode = equipment.TagMode(mode)
	var err error
	p.CreatedAt, err = parseTime(created)
	return p, err
}

func scanRecord(row scanner) (equipment.Record, error) {
	var (
		r                                            equipment.Record
		drawing, block, handle, upstream, downstream sql.NullString
		created, modified                            string
	)
	err := row.Scan(&r.ID, &r.ProjectID, &r.TagNumber, &r.EquipmentType, &r.Description, &r.Area,
		&r.Manufacturer, &r.Model, &r.Layer, &r.Status, &drawing, &block, &handle, &upstream,
		&downstream, &created, &modified, &r.IsActive)
	if err != nil {
		return r, fmt.Errorf("scan record: %w", err)
	}
	r.SourceDrawingID = nullable(drawing)
	r.SourceBlockIdentifier = nullable(block)
	r.SourceHandle = nullable(handle)
	r.UpstreamID = nullable(upstream)
	r.DownstreamID = nullable(downstream)
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, err
	}
	if r.ModifiedAt, err = parseTime(modified); err != nil {
		return r, err
	}
	return r, nil
}

func recordArgs(r *equipment.Record) []any {
	return []any{
		r.ID, r.ProjectID, r.TagNumber, r.EquipmentType, r.Description, r.Area,
		r.Manufacturer, r.Model, r.Layer, r.Status,
		nullString(r.SourceDrawingID), nullString(r.SourceBlockIdentifier), nullString(r.SourceHandle),
		nullString(r.UpstreamID), nullString(r.DownstreamID),
		formatTime(r.CreatedAt), formatTime(r.ModifiedAt), r.IsActive,
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return t, errors.WrapParse("timestamp", "", err)
	}
	return t, nil
}
