// Package outbox provides durable and in-memory storage for pending mutations.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// SQLiteOutboxStore implements OutboxStorePort on the outbox table.
// The autoincrement seq column defines queue order.
type SQLiteOutboxStore struct {
	db *sql.DB
}

// NewSQLiteOutboxStore creates an outbox store on an open, migrated database.
func NewSQLiteOutboxStore(db *sql.DB) *SQLiteOutboxStore {
	return &SQLiteOutboxStore{db: db}
}

const selectMutation = `
	SELECT id, entity_type, owner_id, kind, entity_id, payload, created_at, retry_count, last_error, status
	FROM outbox
`

// Append adds a mutation to the end of the queue.
func (s *SQLiteOutboxStore) Append(ctx context.Context, m *offline.PendingMutation) error {
	if m == nil {
		return fmt.Errorf("append mutation: nil mutation")
	}
	if err := m.Scope.Validate(); err != nil {
		return fmt.Errorf("append mutation %s: %w", m.ID, err)
	}

	status := m.Status
	if status == "" {
		status = offline.MutationPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox
		(id, scope_key, entity_type, owner_id, kind, entity_id, payload, created_at, retry_count, last_error, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Scope.String(), m.Scope.EntityType, m.Scope.OwnerID,
		string(m.Kind), m.EntityID, []byte(m.Payload), m.CreatedAt.UnixNano(),
		m.RetryCount, m.LastError, string(status),
	)
	if err != nil {
		return fmt.Errorf("append mutation %s: %w", m.ID, err)
	}
	return nil
}

// Get returns a mutation by id.
func (s *SQLiteOutboxStore) Get(ctx context.Context, id string) (*offline.PendingMutation, error) {
	row := s.db.QueryRowContext(ctx, selectMutation+` WHERE id = ?`, id)
	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrMutationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get mutation %s: %w", id, err)
	}
	return m, nil
}

// ListByEntityType returns every queued mutation for an entity type, oldest first.
func (s *SQLiteOutboxStore) ListByEntityType(ctx context.Context, entityType string) ([]offline.PendingMutation, error) {
	return s.list(ctx, selectMutation+` WHERE entity_type = ? ORDER BY seq`, entityType)
}

// ListByScope returns every queued mutation for a scope, oldest first.
func (s *SQLiteOutboxStore) ListByScope(ctx context.Context, scope offline.ScopeKey) ([]offline.PendingMutation, error) {
	return s.list(ctx, selectMutation+` WHERE scope_key = ? ORDER BY seq`, scope.String())
}

// Delete removes a mutation.
func (s *SQLiteOutboxStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation %s: %w", id, err)
	}
	return nil
}

// RecordFailure stores the outcome of a failed replay attempt.
func (s *SQLiteOutboxStore) RecordFailure(ctx context.Context, id string, retryCount int, lastErr string, status offline.MutationStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET retry_count = ?, last_error = ?, status = ? WHERE id = ?
	`, retryCount, lastErr, string(status), id)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domainerrors.ErrMutationNotFound, id)
	}
	return nil
}

// Unblock returns every blocked mutation of a scope to pending.
func (s *SQLiteOutboxStore) Unblock(ctx context.Context, scope offline.ScopeKey) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = ? WHERE scope_key = ? AND status = ?
	`, string(offline.MutationPending), scope.String(), string(offline.MutationBlocked))
	if err != nil {
		return 0, fmt.Errorf("unblock %s: %w", scope, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountByScope returns the number of queued mutations for a scope.
func (s *SQLiteOutboxStore) CountByScope(ctx context.Context, scope offline.ScopeKey) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE scope_key = ?`, scope.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", scope, err)
	}
	return count, nil
}

// EntityTypes returns the entity types with queued mutations, ordered by
// their oldest mutation.
func (s *SQLiteOutboxStore) EntityTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type FROM outbox GROUP BY entity_type ORDER BY MIN(seq)
	`)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var entityType string
		if err := rows.Scan(&entityType); err != nil {
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		types = append(types, entityType)
	}
	return types, rows.Err()
}

// Scopes returns the scopes of an entity type with queued mutations,
// ordered by their oldest mutation.
func (s *SQLiteOutboxStore) Scopes(ctx context.Context, entityType string) ([]offline.ScopeKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, owner_id FROM outbox
		WHERE entity_type = ?
		GROUP BY scope_key
		ORDER BY MIN(seq)
	`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list scopes of %s: %w", entityType, err)
	}
	defer rows.Close()

	var scopes []offline.ScopeKey
	for rows.Next() {
		var scope offline.ScopeKey
		if err := rows.Scan(&scope.EntityType, &scope.OwnerID); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

func (s *SQLiteOutboxStore) list(ctx context.Context, query string, arg any) ([]offline.PendingMutation, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var out []offline.PendingMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMutation(row scanner) (*offline.PendingMutation, error) {
	var m offline.PendingMutation
	var kind, status string
	var payload []byte
	var createdAt int64

	err := row.Scan(
		&m.ID, &m.Scope.EntityType, &m.Scope.OwnerID, &kind, &m.EntityID,
		&payload, &createdAt, &m.RetryCount, &m.LastError, &status,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = offline.OperationKind(kind)
	m.Status = offline.MutationStatus(status)
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	if len(payload) > 0 {
		m.Payload = payload
	}
	return &m, nil
}

// Ensure SQLiteOutboxStore implements OutboxStorePort
var _ ports.OutboxStorePort = (*SQLiteOutboxStore)(nil)
