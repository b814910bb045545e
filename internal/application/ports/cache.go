package ports

import (
	"context"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// CacheStats represents snapshot cache statistics.
type CacheStats struct {
	TotalEntries int64     `json:"total_entries"`
	TotalItems   int64     `json:"total_items"`
	TotalSize    int64     `json:"total_size"` // Serialized size in bytes
	HitCount     int64     `json:"hit_count"`
	MissCount    int64     `json:"miss_count"`
	HitRate      float64   `json:"hit_rate"` // Percentage
	CorruptCount int64     `json:"corrupt_count"`
	SweptCount   int64     `json:"swept_count"`
	OldestEntry  time.Time `json:"oldest_entry"`
	NewestEntry  time.Time `json:"newest_entry"`
}

// SnapshotCachePort stores the last confirmed collection per scope.
type SnapshotCachePort interface {
	// Save replaces the snapshot for scope with items, stamped with the current time.
	Save(ctx context.Context, scope offline.ScopeKey, items []offline.Entity) error

	// Load returns the snapshot for scope, or nil if nothing was saved or the
	// stored data could not be decoded.
	Load(ctx context.Context, scope offline.ScopeKey) (*offline.Snapshot, error)

	// Invalidate removes the snapshot for scope.
	Invalidate(ctx context.Context, scope offline.ScopeKey) error

	// InvalidateAll removes every snapshot.
	InvalidateAll(ctx context.Context) error

	// Sweep removes snapshots saved before cutoff. Returns the number removed.
	Sweep(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns cache statistics.
	Stats(ctx context.Context) (*CacheStats, error)
}
