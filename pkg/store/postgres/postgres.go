// Package postgres is the server-side system-of-record backend, built on a
// pgx connection pool.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
	"github.com/agentstation/tagsync/pkg/errors"
	"github.com/agentstation/tagsync/pkg/logging"
	"github.com/agentstation/tagsync/pkg/store"
	"github.com/agentstation/tagsync/pkg/tags"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var _ store.Store = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewConfigError("store", "invalid postgres dsn", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	ctx, cancel := context.WithTimeout(ctx, constants.StoreConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{pool: pool, logger: logging.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Connected to postgres store")
	return s, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateProject implements store.Store.
func (s *Store) CreateProject(ctx context.Context, p equipment.Project) (equipment.Project, error) {
	p, err := store.PrepareProject(p, s.now())
	if err != nil {
		return p, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, tag_mode, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, string(p.TagMode), p.CreatedAt.UTC())
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
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, tag_mode, created_at FROM projects
		 WHERE id = $1 OR upper(name) = upper($2)
		 ORDER BY (id = $1) DESC LIMIT 1`,
		idOrName, strings.TrimSpace(idOrName))
	p, err := scanProject(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return p, errors.NewNotFoundError("project", idOrName)
	}
	return p, err
}

// Projects implements store.Store.
func (s *Store) Projects(ctx context.Context) ([]equipment.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, tag_mode, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
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
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errors.NewNotFoundError("project", projectID)
		}
		var hasRecords bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM equipment WHERE project_id = $1)`, projectID).Scan(&hasRecords); err != nil {
			return err
		}
		if hasRecords {
			return store.TagModeLocked(projectID)
		}
		_, err := tx.Exec(ctx, `UPDATE projects SET tag_mode = $1 WHERE id = $2`, string(mode), projectID)
		return err
	})
}

// FindByProject implements store.Store.
func (s *Store) FindByProject(ctx context.Context, projectID string) ([]equipment.Record, error) {
	return findByProject(ctx, s.pool, projectID)
}

// MaxSequenceForPrefix implements store.Store.
func (s *Store) MaxSequenceForPrefix(ctx context.Context, projectID, prefix string) (int, error) {
	return maxSequence(ctx, s.pool, projectID, prefix)
}

// Runs implements store.Store.
func (s *Store) Runs(ctx context.Context, projectID string) ([]equipment.RunSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, drawing_id, direction, added, updated, updated_in_source,
		        missing, warnings, started_at, finished_at
		 FROM sync_runs WHERE project_id = $1 ORDER BY started_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []equipment.RunSummary
	for rows.Next() {
		var r equipment.RunSummary
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.DrawingID, &r.Direction, &r.Added, &r.Updated,
			&r.UpdatedInSource, &r.Missing, &r.Warnings, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &tx{tx: pgTx, now: s.now}, nil
}

type tx struct {
	tx   pgx.Tx
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
	_, err := t.tx.Exec(ctx,
		`INSERT INTO equipment (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		recordArgs(r)...)
	if isUniqueViolation(err) {
		return errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, "", errors.StageCommit)
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
	tag, err := t.tx.Exec(ctx,
		`UPDATE equipment SET project_id = $2, tag_number = $3, equipment_type = $4, description = $5,
		        area = $6, manufacturer = $7, model = $8, layer = $9, status = $10,
		        source_drawing_id = $11, source_block_identifier = $12, source_handle = $13,
		        upstream_id = $14, downstream_id = $15, created_at = $16, modified_at = $17,
		        is_active = $18
		 WHERE id = $1`,
		recordArgs(r)...)
	if isUniqueViolation(err) {
		return errors.NewDuplicateTagError(r.ProjectID, r.TagNumber, "", errors.StageCommit)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", r.TagNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("record", r.ID)
	}
	return nil
}

// checkTag rejects a tag already used by another active record.
func (t *tx) checkTag(ctx context.Context, r *equipment.Record) error {
	var existing string
	err := t.tx.QueryRow(ctx,
		`SELECT id FROM equipment
		 WHERE project_id = $1 AND upper(tag_number) = upper($2) AND is_active AND id <> $3
		 LIMIT 1`,
		r.ProjectID, r.TagNumber, r.ID).Scan(&existing)
	switch {
	case stderrors.Is(err, pgx.ErrNoRows):
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
	_, err = t.tx.Exec(ctx,
		`INSERT INTO sync_runs (id, project_id, drawing_id, direction, added, updated,
		        updated_in_source, missing, warnings, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.ProjectID, run.DrawingID, run.Direction, run.Added, run.Updated,
		run.UpdatedInSource, run.Missing, run.Warnings, run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback(ctx)
}

func findByProject(ctx context.Context, q querier, projectID string) ([]equipment.Record, error) {
	rows, err := q.Query(ctx,
		`SELECT `+recordColumns+` FROM equipment
		 WHERE project_id = $1 AND is_active
		 ORDER BY upper(tag_number)`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
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
	rows, err := q.Query(ctx,
		`SELECT tag_number FROM equipment
		 WHERE project_id = $1 AND left(upper(tag_number), $2) = upper($3)`,
		projectID, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to query sequence: %w", err)
	}
	tagNumbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}
	return tags.MaxSequence(tagNumbers, prefix), nil
}

func scanProject(row pgx.Row) (equipment.Project, error) {
	var (
		p    equipment.Project
		mode string
	)
	if err := row.Scan(&p.ID, &p.Name, &mode, &p.CreatedAt); err != nil {
		return p, err
	}
	p.TagMode = equipment.TagMode(mode)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func scanRecord(row pgx.Row) (equipment.Record, error) {
	var r equipment.Record
	err := row.Scan(&r.ID, &r.ProjectID, &r.TagNumber, &r.EquipmentType, &r.Description, &r.Area,
		&r.Manufacturer, &r.Model, &r.Layer, &r.Status, &r.SourceDrawingID, &r.SourceBlockIdentifier,
		&r.SourceHandle, &r.UpstreamID, &r.DownstreamID, &r.CreatedAt, &r.ModifiedAt, &r.IsActive)
	if err != nil {
		return r, fmt.Errorf("failed to scan record: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ModifiedAt = r.ModifiedAt.UTC()
	return r, nil
}

func recordArgs(r *equipment.Record) []any {
	return []any{
		r.ID, r.ProjectID, r.TagNumber, r.EquipmentType, r.Description, r.Area,
		r.Manufacturer, r.Model, r.Layer, r.Status,
		r.SourceDrawingID, r.SourceBlockIdentifier, r.SourceHandle, r.UpstreamID, r.DownstreamID,
		r.CreatedAt.UTC(), r.ModifiedAt.UTC(), r.IsActive,
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
