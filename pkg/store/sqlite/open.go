package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/agentstation/tagsync/pkg/constants"
)

type config struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
}

func defaults() config {
	return config{
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		mkdirAll:    true,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithoutMkdirAll stops Open from creating the database directory.
func WithoutMkdirAll() Option { return func(c *config) { c.mkdirAll = false } }

// openDB opens the database with pragmas set in the DSN so that every
// pooled connection gets them, then applies the schema.
func openDB(path string, cfg config) (*sql.DB, error) {
	if cfg.mkdirAll {
		if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	pragmas := []string{
		"foreign_keys(1)",
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout),
		fmt.Sprintf("synchronous(%s)", cfg.synchronous),
	}
	dsn := "file:" + path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return db, nil
}

const maxRetries = 3

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// runTx executes fn inside a transaction, retrying on SQLITE_BUSY with
// 100/200/300 ms backoff.
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	for i := 0; i < maxRetries; i++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == maxRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sqlite: context cancelled during retry: %w", ctx.Err())
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return fmt.Errorf("sqlite: runTx: max retries exceeded")
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
