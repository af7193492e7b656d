package store

import "database/sql"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    module TEXT NOT NULL,
    test_name TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    running_time TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    UNIQUE(module, test_name, started_at)
);
CREATE INDEX IF NOT EXISTS idx_executions_module ON executions(module);
CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);
`

// RunMigrations applies the database schema migrations.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec(migrationSQL)
	return err
}
