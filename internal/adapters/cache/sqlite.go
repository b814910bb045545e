package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// SQLiteSnapshotCache implements SnapshotCachePort on the snapshots table.
// Each scope key owns exactly one row which Save replaces wholesale.
type SQLiteSnapshotCache struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

// NewSQLiteSnapshotCache creates a snapshot cache on an open database whose
// migrations have been applied.
func NewSQLiteSnapshotCache(db *sql.DB, logger *logging.Logger) *SQLiteSnapshotCache {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SQLiteSnapshotCache{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Save replaces the snapshot for scope.
func (s *SQLiteSnapshotCache) Save(ctx context.Context, scope offline.ScopeKey, items []offline.Entity) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	payload, err := encodeSnapshot(scope, items)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", scope, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots
		(scope_key, entity_type, owner_id, format_version, payload, item_count, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, scope.String(), scope.EntityType, scope.OwnerID, formatVersion, payload, len(items), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", scope, err)
	}
	return nil
}

// Load returns the snapshot for scope, or nil when there is none or the
// stored payload cannot be decoded.
func (s *SQLiteSnapshotCache) Load(ctx context.Context, scope offline.ScopeKey) (*offline.Snapshot, error) {
	var payload []byte
	var savedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, saved_at FROM snapshots WHERE scope_key = ?
	`, scope.String()).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.incrementStat(ctx, "miss_count", 1)
		logging.LogCacheMiss(ctx, s.logger, scope.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", scope, err)
	}

	items, err := decodeSnapshot(scope, payload)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable snapshot",
			"scope", scope.String(),
			"error", err.Error(),
		)
		s.incrementStat(ctx, "miss_count", 1)
		s.incrementStat(ctx, "corrupt_count", 1)
		return nil, nil
	}

	s.incrementStat(ctx, "hit_count", 1)
	logging.LogCacheHit(ctx, s.logger, scope.String(), len(items))

	return &offline.Snapshot{
		Scope:   scope,
		Items:   items,
		SavedAt: time.Unix(0, savedAt),
	}, nil
}

// Invalidate removes the snapshot for scope.
func (s *SQLiteSnapshotCache) Invalidate(ctx context.Context, scope offline.ScopeKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE scope_key = ?`, scope.String())
	if err != nil {
		return fmt.Errorf("invalidate snapshot %s: %w", scope, err)
	}
	return nil
}

// InvalidateAll removes every snapshot and resets statistics.
func (s *SQLiteSnapshotCache) InvalidateAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("invalidate snapshots: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_stats`); err != nil {
		return fmt.Errorf("reset cache stats: %w", err)
	}
	return nil
}

// Sweep removes snapshots saved before cutoff.
func (s *SQLiteSnapshotCache) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE saved_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep snapshots: %w", err)
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		s.incrementStat(ctx, "swept_count", removed)
	}
	return removed, nil
}

// Stats returns cache statistics.
func (s *SQLiteSnapshotCache) Stats(ctx context.Context) (*ports.CacheStats, error) {
	stats := &ports.CacheStats{}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(item_count), 0), COALESCE(SUM(LENGTH(payload)), 0),
			MIN(saved_at), MAX(saved_at)
		FROM snapshots
	`).Scan(&stats.TotalEntries, &stats.TotalItems, &stats.TotalSize, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("snapshot stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestEntry = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		stats.NewestEntry = time.Unix(0, newest.Int64)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM cache_stats`)
	if err != nil {
		return nil, fmt.Errorf("snapshot stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			continue
		}
		switch name {
		case "hit_count":
			stats.HitCount = value
		case "miss_count":
			stats.MissCount = value
		case "corrupt_count":
			stats.CorruptCount = value
		case "swept_count":
			stats.SweptCount = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot stats: %w", err)
	}

	if stats.HitCount+stats.MissCount > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(stats.HitCount+stats.MissCount) * 100
	}

	return stats, nil
}

// incrementStat bumps a named counter in cache_stats. Failures are ignored:
// statistics never fail a cache operation.
func (s *SQLiteSnapshotCache) incrementStat(ctx context.Context, name string, amount int64) {
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO cache_stats (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
	`, name, amount)
}

// Ensure SQLiteSnapshotCache implements SnapshotCachePort
var _ ports.SnapshotCachePort = (*SQLiteSnapshotCache)(nil)
