// Package offline defines the data model of the offline-first sync engine:
// scope keys, snapshots, pending mutations and connectivity state.
package offline

import (
	"fmt"
	"strings"
)

// scopeSeparator joins the entity type and owner id in a rendered ScopeKey.
const scopeSeparator = ":"

// ScopeKey identifies one cacheable, syncable collection: an entity type
// owned by a group. Every cache and outbox entry is addressed by exactly one key.
type ScopeKey struct {
	EntityType string `json:"entity_type"`
	OwnerID    string `json:"owner_id"`
}

// NewScopeKey creates a validated ScopeKey.
func NewScopeKey(entityType, ownerID string) (ScopeKey, error) {
	k := ScopeKey{
		EntityType: strings.TrimSpace(entityType),
		OwnerID:    strings.TrimSpace(ownerID),
	}
	if err := k.Validate(); err != nil {
		return ScopeKey{}, err
	}
	return k, nil
}

// MustScopeKey is like NewScopeKey but panics on invalid input.
// Intended for constants and tests.
func MustScopeKey(entityType, ownerID string) ScopeKey {
	k, err := NewScopeKey(entityType, ownerID)
	if err != nil {
		panic(err)
	}
	return k
}

// ParseScopeKey parses the "entityType:ownerID" form produced by String.
func ParseScopeKey(s string) (ScopeKey, error) {
	entityType, ownerID, ok := strings.Cut(s, scopeSeparator)
	if !ok {
		return ScopeKey{}, fmt.Errorf("invalid scope key %q: expected entityType:ownerID", s)
	}
	return NewScopeKey(entityType, ownerID)
}

// Validate checks that both parts are present and the entity type can be
// rendered unambiguously.
func (k ScopeKey) Validate() error {
	if k.EntityType == "" {
		return fmt.Errorf("scope key: entity type is required")
	}
	if k.OwnerID == "" {
		return fmt.Errorf("scope key: owner id is required")
	}
	if strings.Contains(k.EntityType, scopeSeparator) {
		return fmt.Errorf("scope key: entity type %q must not contain %q", k.EntityType, scopeSeparator)
	}
	return nil
}

// IsZero reports whether the key is unset.
func (k ScopeKey) IsZero() bool {
	return k.EntityType == "" && k.OwnerID == ""
}

// String renders the key as "entityType:ownerID", e.g. "events:groupA".
func (k ScopeKey) String() string {
	return k.EntityType + scopeSeparator + k.OwnerID
}
