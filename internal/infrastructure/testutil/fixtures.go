package testutil

import (
	"encoding/json"
	"testing"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// Entities builds entities with the given ids and a small JSON body each.
func Entities(ids ...string) []offline.Entity {
	out := make([]offline.Entity, len(ids))
	for i, id := range ids {
		out[i] = offline.Entity{ID: id, Data: json.RawMessage(`{"id":"` + id + `","title":"` + id + `"}`)}
	}
	return out
}

// EntityOf encodes v as an entity with the given id.
func EntityOf(t *testing.T, id string, v any) offline.Entity {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", id, err)
	}
	return offline.Entity{ID: id, Data: data}
}

// IDs returns the ids of items in order.
func IDs(items []offline.Entity) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

// NewMutation creates a pending mutation of scope. Create and update carry a
// payload naming entityID.
func NewMutation(t *testing.T, scope offline.ScopeKey, kind offline.OperationKind, entityID string) *offline.PendingMutation {
	t.Helper()
	var payload json.RawMessage
	if kind != offline.OpDelete {
		payload = json.RawMessage(`{"id":"` + entityID + `"}`)
	}
	m, err := offline.NewMutation(scope, kind, entityID, payload)
	if err != nil {
		t.Fatalf("NewMutation() error = %v", err)
	}
	return m
}

// MutationIDs returns the ids of ms in order.
func MutationIDs(ms []offline.PendingMutation) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
