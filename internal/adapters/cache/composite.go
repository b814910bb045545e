package cache

import (
	"context"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// CompositeSnapshotCache combines a memory tier and a SQLite tier.
// Hot snapshots are served from memory; SQLite is the durable copy that
// survives restarts.
type CompositeSnapshotCache struct {
	memory *MemorySnapshotCache
	sqlite *SQLiteSnapshotCache
}

// NewCompositeSnapshotCache creates a two-tier snapshot cache.
func NewCompositeSnapshotCache(memory *MemorySnapshotCache, sqlite *SQLiteSnapshotCache) *CompositeSnapshotCache {
	return &CompositeSnapshotCache{
		memory: memory,
		sqlite: sqlite,
	}
}

// Save writes the durable tier first so memory never holds a snapshot that
// a restart would lose.
func (c *CompositeSnapshotCache) Save(ctx context.Context, scope offline.ScopeKey, items []offline.Entity) error {
	if err := c.sqlite.Save(ctx, scope, items); err != nil {
		return err
	}
	return c.memory.Save(ctx, scope, items)
}

// Load checks memory first, then SQLite, promoting SQLite hits.
func (c *CompositeSnapshotCache) Load(ctx context.Context, scope offline.ScopeKey) (*offline.Snapshot, error) {
	if snap, _ := c.memory.Load(ctx, scope); snap != nil {
		return snap, nil
	}

	snap, err := c.sqlite.Load(ctx, scope)
	if err != nil || snap == nil {
		return snap, err
	}

	c.memory.promote(scope, snap)
	return snap, nil
}

// Invalidate removes the snapshot from both tiers.
func (c *CompositeSnapshotCache) Invalidate(ctx context.Context, scope offline.ScopeKey) error {
	if err := c.memory.Invalidate(ctx, scope); err != nil {
		return err
	}
	return c.sqlite.Invalidate(ctx, scope)
}

// InvalidateAll clears both tiers.
func (c *CompositeSnapshotCache) InvalidateAll(ctx context.Context) error {
	if err := c.memory.InvalidateAll(ctx); err != nil {
		return err
	}
	return c.sqlite.InvalidateAll(ctx)
}

// Sweep purges old snapshots from both tiers. The SQLite count is reported
// since every memory entry also lives there.
func (c *CompositeSnapshotCache) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	_, _ = c.memory.Sweep(ctx, cutoff)
	return c.sqlite.Sweep(ctx, cutoff)
}

// Stats returns the durable tier's statistics with memory hits folded in.
func (c *CompositeSnapshotCache) Stats(ctx context.Context) (*ports.CacheStats, error) {
	stats, err := c.sqlite.Stats(ctx)
	if err != nil {
		return nil, err
	}

	memStats, err := c.memory.Stats(ctx)
	if err != nil {
		return nil, err
	}

	// Memory misses fall through to SQLite which counts them itself.
	stats.HitCount += memStats.HitCount
	if stats.HitCount+stats.MissCount > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(stats.HitCount+stats.MissCount) * 100
	}

	return stats, nil
}

// Ensure CompositeSnapshotCache implements SnapshotCachePort
var _ ports.SnapshotCachePort = (*CompositeSnapshotCache)(nil)
