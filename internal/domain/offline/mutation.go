package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the kind of write a mutation performs.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// ParseOperationKind converts a string into an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch k := OperationKind(s); k {
	case OpCreate, OpUpdate, OpDelete:
		return k, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q: must be one of create, update, delete", s)
	}
}

// MutationStatus is the replay state of a queued mutation.
type MutationStatus string

const (
	// MutationPending mutations are replayed on the next drain.
	MutationPending MutationStatus = "pending"
	// MutationBlocked mutations were rejected with a non-retryable error.
	// They halt their scope until retried or discarded by the user.
	MutationBlocked MutationStatus = "blocked"
)

// PendingMutation is a write that has not yet been confirmed by the remote store.
// Its ID doubles as an idempotency key for remote stores that support one.
type PendingMutation struct {
	ID         string          `json:"id"`
	Scope      ScopeKey        `json:"scope"`
	Kind       OperationKind   `json:"kind"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	Status     MutationStatus  `json:"status"`
}

// NewMutation creates a pending mutation with a fresh id.
// Create and update require a payload; delete ignores it.
func NewMutation(scope ScopeKey, kind OperationKind, entityID string, payload json.RawMessage) (*PendingMutation, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseOperationKind(string(kind)); err != nil {
		return nil, err
	}
	if entityID == "" {
		return nil, fmt.Errorf("mutation: entity id is required")
	}
	if kind != OpDelete {
		if len(payload) == 0 {
			return nil, fmt.Errorf("mutation: payload is required for %s", kind)
		}
		if !json.Valid(payload) {
			return nil, fmt.Errorf("mutation: payload is not valid JSON")
		}
	} else {
		payload = nil
	}

	return &PendingMutation{
		ID:        uuid.New().String(),
		Scope:     scope,
		Kind:      kind,
		EntityID:  entityID,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now().UTC(),
		Status:    MutationPending,
	}, nil
}

// IsBlocked reports whether the mutation is waiting for user action.
func (m *PendingMutation) IsBlocked() bool {
	return m.Status == MutationBlocked
}

// Entity returns the entity this mutation writes.
func (m *PendingMutation) Entity() Entity {
	return Entity{ID: m.EntityID, Data: append(json.RawMessage(nil), m.Payload...)}
}

// ApplyMutation returns items with m applied as an optimistic local patch.
// The input slice is not modified.
func ApplyMutation(items []Entity, m PendingMutation) []Entity {
	out := CloneEntities(items)
	idx := -1
	for i, e := range out {
		if e.ID == m.EntityID {
			idx = i
			break
		}
	}

	switch m.Kind {
	case OpCreate, OpUpdate:
		if idx >= 0 {
			out[idx] = m.Entity()
		} else {
			out = append(out, m.Entity())
		}
	case OpDelete:
		if idx >= 0 {
			out = append(out[:idx], out[idx+1:]...)
		}
	}
	return out
}

// Overlay applies pending mutations in order on top of confirmed items.
func Overlay(items []Entity, pending []PendingMutation) []Entity {
	out := CloneEntities(items)
	for _, m := range pending {
		out = ApplyMutation(out, m)
	}
	return out
}
