// Package cache provides snapshot cache adapters: an in-memory map, a SQLite
// table and a two-tier composite of both.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// formatVersion is bumped whenever the envelope layout changes. Snapshots
// written with any other version are treated as absent.
const formatVersion = 1

// envelope is the serialized form of a snapshot.
type envelope struct {
	V          int              `json:"v"`
	EntityType string           `json:"entity_type"`
	Items      []offline.Entity `json:"items"`
}

func encodeSnapshot(scope offline.ScopeKey, items []offline.Entity) ([]byte, error) {
	if items == nil {
		items = []offline.Entity{}
	}
	return json.Marshal(envelope{V: formatVersion, EntityType: scope.EntityType, Items: items})
}

func decodeSnapshot(scope offline.ScopeKey, data []byte) ([]offline.Entity, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.V != formatVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported format version %d", env.V)
	}
	if env.EntityType != scope.EntityType {
		return nil, fmt.Errorf("decode snapshot: entity type %q does not match scope %s", env.EntityType, scope)
	}
	if env.Items == nil {
		env.Items = []offline.Entity{}
	}
	return env.Items, nil
}
