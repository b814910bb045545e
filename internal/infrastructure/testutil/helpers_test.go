package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "flag", "offline")

	if path != filepath.Join(dir, "flag") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "offline" {
		t.Errorf("content = %q", data)
	}
}

func TestOpenTestDB(t *testing.T) {
	db := OpenTestDB(t)
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		t.Fatalf("outbox table missing: %v", err)
	}
}

func TestEventually(t *testing.T) {
	var calls atomic.Int32
	Eventually(t, time.Second, func() bool { return calls.Add(1) >= 3 }, "counter")
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestFixtures(t *testing.T) {
	items := Entities("a", "b")
	AssertEqual(t, len(items), 2)
	AssertEqual(t, IDs(items)[1], "b")

	e := EntityOf(t, "x", map[string]int{"n": 1})
	AssertEqual(t, string(e.Data), `{"n":1}`)

	scope := offline.MustScopeKey("events", "band-1")
	m := NewMutation(t, scope, offline.OpDelete, "e1")
	if m.Payload != nil {
		t.Errorf("delete payload = %s", m.Payload)
	}
	AssertEqual(t, MutationIDs([]offline.PendingMutation{*m})[0], m.ID)
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, os.ErrNotExist)
}
