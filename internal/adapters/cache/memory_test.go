package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

var (
	eventsA = offline.MustScopeKey("events", "groupA")
	eventsB = offline.MustScopeKey("events", "groupB")
	chatA   = offline.MustScopeKey("chat", "groupA")
)

func entities(ids ...string) []offline.Entity {
	out := make([]offline.Entity, len(ids))
	for i, id := range ids {
		out[i] = offline.Entity{ID: id, Data: json.RawMessage(`{"title":"` + id + `"}`)}
	}
	return out
}

func ids(items []offline.Entity) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemorySnapshotCache_SaveLoad(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	if err := cache.Save(ctx, eventsA, entities("e1", "e2", "e3")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	snap, err := cache.Load(ctx, eventsA)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap == nil {
		t.Fatal("Load() returned nil snapshot")
	}
	if got := ids(snap.Items); !equalIDs(got, []string{"e1", "e2", "e3"}) {
		t.Errorf("Load() items = %v, want [e1 e2 e3]", got)
	}
	if string(snap.Items[0].Data) != `{"title":"e1"}` {
		t.Errorf("Load() data = %s", snap.Items[0].Data)
	}
	if snap.SavedAt.IsZero() {
		t.Error("Load() SavedAt is zero")
	}
}

func TestMemorySnapshotCache_Miss(t *testing.T) {
	cache := NewMemorySnapshotCache()

	snap, err := cache.Load(context.Background(), eventsA)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap != nil {
		t.Errorf("Load() = %+v, want nil", snap)
	}
}

func TestMemorySnapshotCache_EmptyCollectionIsNotAMiss(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	if err := cache.Save(ctx, eventsA, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	snap, _ := cache.Load(ctx, eventsA)
	if snap == nil {
		t.Fatal("Load() returned nil for a saved empty collection")
	}
	if len(snap.Items) != 0 {
		t.Errorf("Load() items = %v, want empty", snap.Items)
	}
}

func TestMemorySnapshotCache_WholesaleReplace(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	_ = cache.Save(ctx, eventsA, entities("e1", "e2", "e3"))
	_ = cache.Save(ctx, eventsA, entities("e4"))

	snap, _ := cache.Load(ctx, eventsA)
	if got := ids(snap.Items); !equalIDs(got, []string{"e4"}) {
		t.Errorf("Load() items = %v, want [e4]", got)
	}
}

func TestMemorySnapshotCache_ScopesAreIsolated(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	_ = cache.Save(ctx, eventsA, entities("a1"))
	_ = cache.Save(ctx, eventsB, entities("b1", "b2"))
	_ = cache.Save(ctx, chatA, entities("c1"))

	tests := []struct {
		scope offline.ScopeKey
		want  []string
	}{
		{eventsA, []string{"a1"}},
		{eventsB, []string{"b1", "b2"}},
		{chatA, []string{"c1"}},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			snap, _ := cache.Load(ctx, tt.scope)
			if snap == nil || !equalIDs(ids(snap.Items), tt.want) {
				t.Errorf("Load(%s) = %v, want %v", tt.scope, snap, tt.want)
			}
		})
	}
}

func TestMemorySnapshotCache_DefensiveCopy(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	items := entities("e1")
	_ = cache.Save(ctx, eventsA, items)
	items[0].ID = "mutated"

	snap, _ := cache.Load(ctx, eventsA)
	snap.Items[0].Data[2] = 'X'

	again, _ := cache.Load(ctx, eventsA)
	if again.Items[0].ID != "e1" {
		t.Errorf("cached id changed through caller slice: %q", again.Items[0].ID)
	}
	if string(again.Items[0].Data) != `{"title":"e1"}` {
		t.Errorf("cached data changed through loaded slice: %s", again.Items[0].Data)
	}
}

func TestMemorySnapshotCache_Invalidate(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	_ = cache.Save(ctx, eventsA, entities("a1"))
	_ = cache.Save(ctx, eventsB, entities("b1"))

	if err := cache.Invalidate(ctx, eventsA); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if snap, _ := cache.Load(ctx, eventsA); snap != nil {
		t.Error("invalidated scope still loads")
	}
	if snap, _ := cache.Load(ctx, eventsB); snap == nil {
		t.Error("unrelated scope was invalidated")
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll() error = %v", err)
	}
	if snap, _ := cache.Load(ctx, eventsB); snap != nil {
		t.Error("InvalidateAll left a snapshot behind")
	}
}

func TestMemorySnapshotCache_Sweep(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }
	_ = cache.Save(ctx, eventsA, entities("old"))

	cache.now = func() time.Time { return base.Add(40 * 24 * time.Hour) }
	_ = cache.Save(ctx, eventsB, entities("new"))

	removed, err := cache.Sweep(ctx, base.Add(10*24*time.Hour))
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
		t.Error("fresh snapshot was swept")
	}
}

func TestMemorySnapshotCache_Stats(t *testing.T) {
	cache := NewMemorySnapshotCache()
	ctx := context.Background()

	_ = cache.Save(ctx, eventsA, entities("a1", "a2"))
	_, _ = cache.Load(ctx, eventsA) // hit
	_, _ = cache.Load(ctx, eventsB) // miss

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEntries != 1 || stats.TotalItems != 2 {
		t.Errorf("Stats() entries=%d items=%d, want 1 and 2", stats.TotalEntries, stats.TotalItems)
	}
	if stats.HitCount != 1 || stats.MissCount != 1 {
		t.Errorf("Stats() hits=%d misses=%d, want 1 and 1", stats.HitCount, stats.MissCount)
	}
	if stats.HitRate != 50 {
		t.Errorf("Stats() HitRate = %v, want 50", stats.HitRate)
	}
}

func TestMemorySnapshotCache_RejectsInvalidScope(t *testing.T) {
	cache := NewMemorySnapshotCache()
	if err := cache.Save(context.Background(), offline.ScopeKey{}, entities("x")); err == nil {
		t.Error("Save() with zero scope should fail")
	}
}
