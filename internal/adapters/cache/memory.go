package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// MemorySnapshotCache implements SnapshotCachePort with an in-memory map.
// Entries are held in their serialized form so callers never share slices
// with the cache.
type MemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time

	// Statistics
	hitCount     int64
	missCount    int64
	corruptCount int64
	sweptCount   int64
}

type memoryEntry struct {
	data      []byte
	itemCount int
	savedAt   time.Time
}

// NewMemorySnapshotCache creates an empty in-memory snapshot cache.
func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Save replaces the snapshot for scope.
func (m *MemorySnapshotCache) Save(ctx context.Context, scope offline.ScopeKey, items []offline.Entity) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	data, err := encodeSnapshot(scope, items)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", scope, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[scope.String()] = &memoryEntry{
		data:      data,
		itemCount: len(items),
		savedAt:   m.now(),
	}
	return nil
}

// promote stores a snapshot read from another tier, keeping its original
// save time so sweeps and staleness stay accurate.
func (m *MemorySnapshotCache) promote(scope offline.ScopeKey, snap *offline.Snapshot) {
	data, err := encodeSnapshot(scope, snap.Items)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[scope.String()] = &memoryEntry{
		data:      data,
		itemCount: len(snap.Items),
		savedAt:   snap.SavedAt,
	}
}

// Load returns the snapshot for scope, or nil when there is none.
func (m *MemorySnapshotCache) Load(ctx context.Context, scope offline.ScopeKey) (*offline.Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.entries[scope.String()]
	m.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&m.missCount, 1)
		return nil, nil
	}

	items, err := decodeSnapshot(scope, entry.data)
	if err != nil {
		atomic.AddInt64(&m.missCount, 1)
		atomic.AddInt64(&m.corruptCount, 1)
		return nil, nil
	}

	atomic.AddInt64(&m.hitCount, 1)
	return &offline.Snapshot{Scope: scope, Items: items, SavedAt: entry.savedAt}, nil
}

// Invalidate removes the snapshot for scope.
func (m *MemorySnapshotCache) Invalidate(ctx context.Context, scope offline.ScopeKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, scope.String())
	return nil
}

// InvalidateAll removes every snapshot and resets statistics.
func (m *MemorySnapshotCache) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	atomic.StoreInt64(&m.hitCount, 0)
	atomic.StoreInt64(&m.missCount, 0)
	atomic.StoreInt64(&m.corruptCount, 0)
	atomic.StoreInt64(&m.sweptCount, 0)
	return nil
}

// Sweep removes snapshots saved before cutoff.
func (m *MemorySnapshotCache) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, entry := range m.entries {
		if entry.savedAt.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	atomic.AddInt64(&m.sweptCount, removed)
	return removed, nil
}

// Stats returns cache statistics.
func (m *MemorySnapshotCache) Stats(ctx context.Context) (*ports.CacheStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &ports.CacheStats{
		TotalEntries: int64(len(m.entries)),
		HitCount:     atomic.LoadInt64(&m.hitCount),
		MissCount:    atomic.LoadInt64(&m.missCount),
		CorruptCount: atomic.LoadInt64(&m.corruptCount),
		SweptCount:   atomic.LoadInt64(&m.sweptCount),
	}

	for _, entry := range m.entries {
		stats.TotalItems += int64(entry.itemCount)
		stats.TotalSize += int64(len(entry.data))
		if stats.OldestEntry.IsZero() || entry.savedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.savedAt
		}
		if entry.savedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.savedAt
		}
	}

	if stats.HitCount+stats.MissCount > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(stats.HitCount+stats.MissCount) * 100
	}

	return stats, nil
}

// Ensure MemorySnapshotCache implements SnapshotCachePort
var _ ports.SnapshotCachePort = (*MemorySnapshotCache)(nil)
