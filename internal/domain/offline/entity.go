package offline

import (
	"encoding/json"
	"time"
)

// Entity is one item of a scope's collection as the engine sees it: an id
// plus the domain service's serialized payload.
type Entity struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	out := Entity{ID: e.ID}
	if e.Data != nil {
		out.Data = append(json.RawMessage(nil), e.Data...)
	}
	return out
}

// CloneEntities deep-copies a slice of entities. A nil input yields nil.
func CloneEntities(items []Entity) []Entity {
	if items == nil {
		return nil
	}
	out := make([]Entity, len(items))
	for i, e := range items {
		out[i] = e.Clone()
	}
	return out
}

// Snapshot is the last confirmed full copy of a scope's data.
// Snapshots are replaced wholesale, never field-merged.
type Snapshot struct {
	Scope   ScopeKey
	Items   []Entity
	SavedAt time.Time
}

// Age returns how long ago the snapshot was saved.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt)
}

// OlderThan reports whether the snapshot was saved before cutoff.
func (s *Snapshot) OlderThan(cutoff time.Time) bool {
	return s.SavedAt.Before(cutoff)
}
