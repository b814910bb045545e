package sqlite

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "create_snapshots_table", createSnapshotsTable},
	{2, "create_outbox_table", createOutboxTable},
	{3, "create_cache_stats_table", createCacheStatsTable},
	{4, "create_indices", createIndices},
}

// applyMigrations applies all database migrations in order.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("could not begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("could not commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table.
func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// isMigrationApplied checks if a migration has been applied.
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Snapshots hold the last confirmed collection per scope. saved_at is unix nanoseconds.
const createSnapshotsTable = `
CREATE TABLE snapshots (
	scope_key TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	format_version INTEGER NOT NULL,
	payload BLOB NOT NULL,
	item_count INTEGER NOT NULL DEFAULT 0,
	saved_at INTEGER NOT NULL
);
`

// seq gives a total insertion order independent of clock resolution.
const createOutboxTable = `
CREATE TABLE outbox (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	scope_key TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	payload BLOB,
	created_at INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending'
);
`

const createCacheStatsTable = `
CREATE TABLE cache_stats (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);
`

const createIndices = `
CREATE INDEX IF NOT EXISTS idx_snapshots_saved_at ON snapshots(saved_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_entity_type ON snapshots(entity_type);
CREATE INDEX IF NOT EXISTS idx_outbox_scope ON outbox(scope_key, seq);
CREATE INDEX IF NOT EXISTS idx_outbox_entity_type ON outbox(entity_type, seq);
`
