package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/adapters/sqlite"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/testutil"
)

func TestSQLiteSnapshotCache_RoundTrip(t *testing.T) {
	cache := NewSQLiteSnapshotCache(testutil.OpenTestDB(t), nil)
	ctx := context.Background()

	if err := cache.Save(ctx, eventsA, entities("e1", "e2", "e3")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	snap, err := cache.Load(ctx, eventsA)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap == nil {
		t.Fatal("Load() returned nil")
	}
	if got := ids(snap.Items); !equalIDs(got, []string{"e1", "e2", "e3"}) {
		t.Errorf("Load() items = %v, want [e1 e2 e3]", got)
	}
	if string(snap.Items[1].Data) != `{"title":"e2"}` {
		t.Errorf("Load() data = %s", snap.Items[1].Data)
	}
}

func TestSQLiteSnapshotCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	conn, _ := sqlite.NewConnection(path)
	if err := conn.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db, _ := conn.DB()
	if err := NewSQLiteSnapshotCache(db, nil).Save(ctx, chatA, entities("c1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	conn.Close()

	conn2, _ := sqlite.NewConnection(path)
	if err := conn2.Open(); err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer conn2.Close()
	db2, _ := conn2.DB()

	snap, err := NewSQLiteSnapshotCache(db2, nil).Load(ctx, chatA)
	if err != nil || snap == nil {
		t.Fatalf("Load() after reopen = %v, %v", snap, err)
	}
	if !equalIDs(ids(snap.Items), []string{"c1"}) {
		t.Errorf("Load() items = %v", ids(snap.Items))
	}
}

func TestSQLiteSnapshotCache_WholesaleReplace(t *testing.T) {
	cache := NewSQLiteSnapshotCache(testutil.OpenTestDB(t), nil)
	ctx := context.Background()

	_ = cache.Save(ctx, eventsA, entities("e1", "e2", "e3"))
	_ = cache.Save(ctx, eventsA, entities("e4"))

	snap, _ := cache.Load(ctx, eventsA)
	if got := ids(snap.Items); !equalIDs(got, []string{"e4"}) {
		t.Errorf("Load() items = %v, want [e4]", got)
	}
}

func TestSQLiteSnapshotCache_CorruptPayloadIsAMiss(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"unknown version", `{"v":99,"entity_type":"events","items":[]}`},
		{"wrong entity type", `{"v":1,"entity_type":"chat","items":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.OpenTestDB(t)
			cache := NewSQLiteSnapshotCache(db, nil)
			ctx := context.Background()

			_ = cache.Save(ctx, eventsA, entities("e1"))
			if _, err := db.Exec(`UPDATE snapshots SET payload = ? WHERE scope_key = ?`, []byte(tt.payload), eventsA.String()); err != nil {
				t.Fatalf("corrupting row: %v", err)
			}

			snap, err := cache.Load(ctx, eventsA)
			if err != nil {
				t.Fatalf("Load() error = %v, want nil", err)
			}
			if snap != nil {
				t.Errorf("Load() = %+v, want nil", snap)
			}

			stats, _ := cache.Stats(ctx)
			if stats.CorruptCount != 1 {
				t.Errorf("CorruptCount = %d, want 1", stats.CorruptCount)
			}
		})
	}
}

func TestSQLiteSnapshotCache_Sweep(t *testing.T) {
	cache := NewSQLiteSnapshotCache(testutil.OpenTestDB(t), nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base.Add(-31 * 24 * time.Hour) }
	_ = cache.Save(ctx, eventsA, entities("old"))
	cache.now = func() time.Time { return base.Add(-time.Hour) }
	_ = cache.Save(ctx, eventsB, entities("recent"))

	removed, err := cache.Sweep(ctx, base.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed = %d, want 1", removed)
	}
	if snap, _ := cache.Load(ctx, eventsA); snap != nil {
		t.Error("old snapshot survived sweep")
	}
	if snap, _ := cache.Load(ctx, eventsB); snap == nil {
		t.Error("recent snapshot was swept")
	}

	stats, _ := cache.Stats(ctx)
	if stats.SweptCount != 1 {
		t.Errorf("SweptCount = %d, want 1", stats.SweptCount)
	}
}

func TestSQLiteSnapshotCache_SavedAtPrecision(t *testing.T) {
	cache := NewSQLiteSnapshotCache(testutil.OpenTestDB(t), nil)
	ctx := context.Background()

	at := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	cache.now = func() time.Time { return at }
	_ = cache.Save(ctx, eventsA, entities("e1"))

	snap, _ := cache.Load(ctx, eventsA)
	if !snap.SavedAt.Equal(at) {
		t.Errorf("SavedAt = %v, want %v", snap.SavedAt, at)
	}
}

func TestSQLiteSnapshotCache_InvalidateAndStats(t *testing.T) {
	cache := NewSQLiteSnapshotCache(testutil.OpenTestDB(t), nil)
	ctx := context.Background()

	_ = cache.Save(ctx, eventsA, entities("a1", "a2"))
	_ = cache.Save(ctx, eventsB, entities("b1"))
	_, _ = cache.Load(ctx, eventsA)
	_, _ = cache.Load(ctx, chatA)

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEntries != 2 || stats.TotalItems != 3 {
		t.Errorf("Stats() entries=%d items=%d, want 2 and 3", stats.TotalEntries, stats.TotalItems)
	}
	if stats.HitCount != 1 || stats.MissCount != 1 {
		t.Errorf("Stats() hits=%d misses=%d, want 1 and 1", stats.HitCount, stats.MissCount)
	}
	if stats.TotalSize == 0 {
		t.Error("Stats() TotalSize = 0")
	}

	if err := cache.Invalidate(ctx, eventsA); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if snap, _ := cache.Load(ctx, eventsA); snap != nil {
		t.Error("invalidated snapshot still loads")
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll() error = %v", err)
	}
	stats, _ = cache.Stats(ctx)
	if stats.TotalEntries != 0 || stats.HitCount != 0 {
		t.Errorf("Stats() after InvalidateAll = %+v", stats)
	}
}
