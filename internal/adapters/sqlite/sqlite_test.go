package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewConnection(t *testing.T) {
	t.Run("creates connection with custom path", func(t *testing.T) {
		conn, err := NewConnection("/tmp/test.db")
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		if conn.Path() != "/tmp/test.db" {
			t.Errorf("Path() = %q, want %q", conn.Path(), "/tmp/test.db")
		}
	})

	t.Run("creates connection with default path", func(t *testing.T) {
		conn, err := NewConnection("")
		if err != nil {
			t.Fatalf("NewConnection() error = %v", err)
		}
		homeDir, _ := os.UserHomeDir()
		expectedPath := filepath.Join(homeDir, ".bandsync", "bandsync.db")
		if conn.Path() != expectedPath {
			t.Errorf("Path() = %q, want %q", conn.Path(), expectedPath)
		}
	})
}

func TestConnection_OpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	t.Run("open creates database and runs migrations", func(t *testing.T) {
		if err := conn.Open(); err != nil {
			t.Fatalf("Open() error = %v", err)
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Open() did not create database file")
		}

		db, err := conn.DB()
		if err != nil {
			t.Fatalf("DB() error = %v", err)
		}
		if db == nil {
			t.Error("DB() returned nil")
		}
	})

	t.Run("open on already open connection returns error", func(t *testing.T) {
		if err := conn.Open(); err == nil {
			t.Error("Open() on already open connection should return error")
		}
	})

	t.Run("close closes the connection", func(t *testing.T) {
		if err := conn.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !conn.IsClosed() {
			t.Error("IsClosed() = false after Close()")
		}
		if _, err := conn.DB(); err == nil {
			t.Error("DB() after Close() should return error")
		}
	})

	t.Run("close twice is a no-op", func(t *testing.T) {
		if err := conn.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})
}

func TestConnection_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	conn, _ := NewConnection(dbPath)
	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db, _ := conn.DB()
	if _, err := db.Exec(`INSERT INTO cache_stats (name, value) VALUES ('hits', 7)`); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	conn.Close()

	conn2, _ := NewConnection(dbPath)
	if err := conn2.Open(); err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer conn2.Close()

	db2, _ := conn2.DB()
	var value int
	if err := db2.QueryRow(`SELECT value FROM cache_stats WHERE name = 'hits'`).Scan(&value); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if value != 7 {
		t.Errorf("value = %d, want 7", value)
	}
}

func TestConnection_Ping(t *testing.T) {
	conn, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	if err := conn.Ping(); err == nil {
		t.Error("Ping() on unopened connection should return error")
	}

	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestConnection_InMemory(t *testing.T) {
	conn, err := NewConnection(":memory:")
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	db, err := conn.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}

	tables := []string{"snapshots", "outbox", "cache_stats", "migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err == sql.ErrNoRows {
			t.Errorf("table %q was not created", table)
		} else if err != nil {
			t.Errorf("error checking table %q: %v", table, err)
		}
	}
}

func TestConnection_ConcurrentAccess(t *testing.T) {
	conn, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := conn.DB(); err != nil {
				t.Errorf("concurrent DB() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
