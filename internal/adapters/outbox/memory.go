package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// MemoryOutboxStore implements OutboxStorePort with an ordered slice.
// Contents are lost when the process exits.
type MemoryOutboxStore struct {
	mu    sync.RWMutex
	queue []offline.PendingMutation
}

// NewMemoryOutboxStore creates an empty in-memory outbox.
func NewMemoryOutboxStore() *MemoryOutboxStore {
	return &MemoryOutboxStore{}
}

// Append adds a mutation to the end of the queue.
func (s *MemoryOutboxStore) Append(ctx context.Context, m *offline.PendingMutation) error {
	if m == nil {
		return fmt.Errorf("append mutation: nil mutation")
	}
	if err := m.Scope.Validate(); err != nil {
		return fmt.Errorf("append mutation %s: %w", m.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.queue {
		if existing.ID == m.ID {
			return fmt.Errorf("append mutation %s: duplicate id", m.ID)
		}
	}

	cp := copyMutation(*m)
	if cp.Status == "" {
		cp.Status = offline.MutationPending
	}
	s.queue = append(s.queue, cp)
	return nil
}

// Get returns a mutation by id.
func (s *MemoryOutboxStore) Get(ctx context.Context, id string) (*offline.PendingMutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.queue {
		if m.ID == id {
			cp := copyMutation(m)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domainerrors.ErrMutationNotFound, id)
}

// ListByEntityType returns every queued mutation for an entity type, oldest first.
func (s *MemoryOutboxStore) ListByEntityType(ctx context.Context, entityType string) ([]offline.PendingMutation, error) {
	return s.filter(func(m offline.PendingMutation) bool {
		return m.Scope.EntityType == entityType
	}), nil
}

// ListByScope returns every queued mutation for a scope, oldest first.
func (s *MemoryOutboxStore) ListByScope(ctx context.Context, scope offline.ScopeKey) ([]offline.PendingMutation, error) {
	return s.filter(func(m offline.PendingMutation) bool {
		return m.Scope == scope
	}), nil
}

// Delete removes a mutation.
func (s *MemoryOutboxStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.queue {
		if m.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

// RecordFailure stores the outcome of a failed replay attempt.
func (s *MemoryOutboxStore) RecordFailure(ctx context.Context, id string, retryCount int, lastErr string, status offline.MutationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.queue {
		if s.queue[i].ID == id {
			s.queue[i].RetryCount = retryCount
			s.queue[i].LastError = lastErr
			s.queue[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domainerrors.ErrMutationNotFound, id)
}

// Unblock returns every blocked mutation of a scope to pending.
func (s *MemoryOutboxStore) Unblock(ctx context.Context, scope offline.ScopeKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.queue {
		if s.queue[i].Scope == scope && s.queue[i].IsBlocked() {
			s.queue[i].Status = offline.MutationPending
			n++
		}
	}
	return n, nil
}

// CountByScope returns the number of queued mutations for a scope.
func (s *MemoryOutboxStore) CountByScope(ctx context.Context, scope offline.ScopeKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.queue {
		if m.Scope == scope {
			n++
		}
	}
	return n, nil
}

// EntityTypes returns the entity types with queued mutations, ordered by
// their oldest mutation.
func (s *MemoryOutboxStore) EntityTypes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for _, m := range s.queue {
		if !seen[m.Scope.EntityType] {
			seen[m.Scope.EntityType] = true
			types = append(types, m.Scope.EntityType)
		}
	}
	return types, nil
}

// Scopes returns the scopes of an entity type with queued mutations,
// ordered by their oldest mutation.
func (s *MemoryOutboxStore) Scopes(ctx context.Context, entityType string) ([]offline.ScopeKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[offline.ScopeKey]bool)
	var scopes []offline.ScopeKey
	for _, m := range s.queue {
		if m.Scope.EntityType == entityType && !seen[m.Scope] {
			seen[m.Scope] = true
			scopes = append(scopes, m.Scope)
		}
	}
	return scopes, nil
}

func (s *MemoryOutboxStore) filter(keep func(offline.PendingMutation) bool) []offline.PendingMutation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []offline.PendingMutation
	for _, m := range s.queue {
		if keep(m) {
			out = append(out, copyMutation(m))
		}
	}
	return out
}

func copyMutation(m offline.PendingMutation) offline.PendingMutation {
	if m.Payload != nil {
		m.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	return m
}

// Ensure MemoryOutboxStore implements OutboxStorePort
var _ ports.OutboxStorePort = (*MemoryOutboxStore)(nil)
