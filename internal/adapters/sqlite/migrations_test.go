package sqlite

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func countMigrations(t *testing.T, db *sql.DB) int {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	return count
}

func TestApplyMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	if got := countMigrations(t, db); got != len(migrations) {
		t.Errorf("migrations count = %d, want %d", got, len(migrations))
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := applyMigrations(db); err != nil {
		t.Fatalf("first applyMigrations() error = %v", err)
	}
	if err := applyMigrations(db); err != nil {
		t.Fatalf("second applyMigrations() error = %v", err)
	}

	if got := countMigrations(t, db); got != len(migrations) {
		t.Errorf("migrations count = %d after idempotent run, want %d", got, len(migrations))
	}
}

func TestOutboxTable_Ordering(t *testing.T) {
	db := openTestDB(t)
	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	insert := `INSERT INTO outbox (id, scope_key, entity_type, owner_id, kind, entity_id, created_at)
		VALUES (?, 'events:g1', 'events', 'g1', 'create', ?, 0)`
	for _, id := range []string{"c", "a", "b"} {
		if _, err := db.Exec(insert, id, "e-"+id); err != nil {
			t.Fatalf("insert %s error = %v", id, err)
		}
	}

	rows, err := db.Query(`SELECT id FROM outbox ORDER BY seq`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		got = append(got, id)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOutboxTable_UniqueID(t *testing.T) {
	db := openTestDB(t)
	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	insert := `INSERT INTO outbox (id, scope_key, entity_type, owner_id, kind, entity_id, created_at)
		VALUES ('m1', 'events:g1', 'events', 'g1', 'create', 'e1', 0)`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("duplicate mutation id should be rejected")
	}
}

func TestDefaultValues(t *testing.T) {
	db := openTestDB(t)
	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO outbox (id, scope_key, entity_type, owner_id, kind, entity_id, created_at)
		VALUES ('m1', 'chat:g1', 'chat', 'g1', 'create', 'c1', 0)`)
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}

	var retryCount int
	var lastError, status string
	err = db.QueryRow(`SELECT retry_count, last_error, status FROM outbox WHERE id = 'm1'`).
		Scan(&retryCount, &lastError, &status)
	if err != nil {
		t.Fatalf("QueryRow() error = %v", err)
	}
	if retryCount != 0 || lastError != "" || status != "pending" {
		t.Errorf("defaults = (%d, %q, %q), want (0, \"\", \"pending\")", retryCount, lastError, status)
	}
}

func TestIsMigrationApplied(t *testing.T) {
	db := openTestDB(t)
	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("createMigrationsTable() error = %v", err)
	}

	applied, err := isMigrationApplied(db, 1)
	if err != nil {
		t.Fatalf("isMigrationApplied() error = %v", err)
	}
	if applied {
		t.Error("migration 1 reported applied before running")
	}

	if err := applyMigrations(db); err != nil {
		t.Fatalf("applyMigrations() error = %v", err)
	}
	applied, _ = isMigrationApplied(db, 1)
	if !applied {
		t.Error("migration 1 not reported applied")
	}
}
