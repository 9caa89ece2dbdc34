// Package sqlite provides SQLite-based persistent storage for loom.
// Uses WAL mode for concurrent reads and crash-safe writes. The single
// write connection is the serialization point: no two transactions can both
// observe a task as available and both reserve it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/loomworks/loom/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/queue.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "queue.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id                       TEXT PRIMARY KEY,
			title                    TEXT NOT NULL,
			task_type                TEXT NOT NULL,
			task_instruction         TEXT NOT NULL,
			verification_instruction TEXT NOT NULL,
			status                   TEXT NOT NULL,
			priority                 INTEGER NOT NULL DEFAULT 1,
			assigned_agent           TEXT NOT NULL DEFAULT '',
			reserved_at              INTEGER,
			started_at               INTEGER,
			completed_at             INTEGER,
			completed_by             TEXT NOT NULL DEFAULT '',
			project_id               TEXT NOT NULL DEFAULT '',
			parent_task_id           TEXT NOT NULL DEFAULT '',
			notes                    TEXT NOT NULL DEFAULT '',
			estimated_hours          REAL NOT NULL DEFAULT 0,
			created_by               TEXT NOT NULL,
			created_at               INTEGER NOT NULL,
			updated_at               INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed_by ON tasks(completed_by)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_order ON tasks(priority DESC, created_at ASC)`,

		`CREATE TABLE IF NOT EXISTS task_relationships (
			parent_task_id    TEXT NOT NULL,
			child_task_id     TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			created_at        INTEGER NOT NULL,
			PRIMARY KEY (parent_task_id, child_task_id, relationship_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rel_child ON task_relationships(child_task_id)`,

		`CREATE TABLE IF NOT EXISTS task_updates (
			id          TEXT PRIMARY KEY,
			task_id     TEXT NOT NULL,
			agent_id    TEXT NOT NULL,
			content     TEXT NOT NULL,
			update_type TEXT NOT NULL,
			metadata    TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_updates_task ON task_updates(task_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS change_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id     TEXT NOT NULL,
			change_type TEXT NOT NULL,
			field_name  TEXT NOT NULL,
			old_value   TEXT NOT NULL DEFAULT '',
			new_value   TEXT NOT NULL DEFAULT '',
			changed_by  TEXT NOT NULL DEFAULT '',
			changed_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_task ON change_history(task_id, id)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// InTx runs fn inside a single transaction. The function either commits as a
// whole or leaves prior state unchanged.
func (d *DB) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}

	t := &Tx{tx: sqlTx}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit tx", err)
	}
	return nil
}

// Tx implements domain.Tx over one *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// storeErr tags an I/O failure so callers can match domain.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
