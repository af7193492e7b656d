package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// NewExecutionID generates a new ULID-based execution identifier.
func NewExecutionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// SQLiteStore implements ExecutionStore backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// RecordExecutions inserts executions into the archive, ignoring ones
// already present for the same (module, test, start time). Returns
// the number of rows actually inserted.
func (s *SQLiteStore) RecordExecutions(ctx context.Context, execs []Execution) (int, error) {
	if len(execs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO executions
			(id, module, test_name, status, started_at, running_time)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range execs {
		id := e.ID
		if id == "" {
			id = NewExecutionID()
		}
		res, err := stmt.ExecContext(ctx, id, e.Module, e.TestName, e.Status, formatTime(e.StartedAt), e.RunningTime)
		if err != nil {
			return inserted, fmt.Errorf("insert execution: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ListExecutions returns archived executions, newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, opts ListOpts) ([]Execution, error) {
	query := `SELECT id, module, test_name, status, started_at, running_time, created_at
		FROM executions WHERE 1=1`
	var args []any
	if opts.Module != "" {
		query += " AND module = ?"
		args = append(args, opts.Module)
	}
	if opts.TestName != "" {
		query += " AND test_name = ?"
		args = append(args, opts.TestName)
	}
	query += " ORDER BY started_at DESC"
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e                  Execution
			startedAt, created string
		)
		if err := rows.Scan(&e.ID, &e.Module, &e.TestName, &e.Status, &startedAt, &e.RunningTime, &created); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if e.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			// created_at defaults come from sqlite's strftime.
			e.CreatedAt = time.Time{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetModuleStats computes all-time aggregates for one module.
func (s *SQLiteStore) GetModuleStats(ctx context.Context, module string) (*ModuleStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'FAIL' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'ERROR' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'NOT_RUN' THEN 1 ELSE 0 END), 0),
			MIN(started_at), MAX(started_at)
		FROM executions WHERE module = ?`, module)

	var (
		stats       ModuleStats
		first, last sql.NullString
	)
	if err := row.Scan(&stats.TotalExecutions, &stats.Passes, &stats.Failures,
		&stats.Errors, &stats.NotRun, &first, &last); err != nil {
		return nil, fmt.Errorf("module stats: %w", err)
	}
	if first.Valid {
		if t, err := parseTime(first.String); err == nil {
			stats.FirstSeen = &t
		}
	}
	if last.Valid {
		if t, err := parseTime(last.String); err == nil {
			stats.LastSeen = &t
		}
	}
	return &stats, nil
}
