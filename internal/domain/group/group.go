// Package group defines the group-collaboration entities that are synced
// through the offline engine: events, setlists, finance records and chat.
package group

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entity types. Together with a group id they form a scope key.
const (
	EntityEvents   = "events"
	EntitySetlists = "setlists"
	EntityFinance  = "finance"
	EntityChat     = "chat"
)

// EntityTypes lists every syncable entity type.
var EntityTypes = []string{EntityEvents, EntitySetlists, EntityFinance, EntityChat}

// IsEntityType reports whether s names a known entity type.
func IsEntityType(s string) bool {
	for _, t := range EntityTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Event is a scheduled group activity such as a rehearsal or gig.
type Event struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at,omitempty"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// Validate checks required fields.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("event: id is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("event: title is required")
	}
	return nil
}

// Setlist is an ordered list of songs for an event.
type Setlist struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	EventID string   `json:"event_id,omitempty"`
	Songs   []string `json:"songs"`
}

// Validate checks required fields.
func (s Setlist) Validate() error {
	if s.ID == "" {
		return errors.New("setlist: id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("setlist: name is required")
	}
	return nil
}

// RecordKind distinguishes income from expenses.
type RecordKind string

const (
	RecordIncome  RecordKind = "income"
	RecordExpense RecordKind = "expense"
)

// FinanceRecord is a shared income or expense entry.
type FinanceRecord struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	Kind        RecordKind `json:"kind"`
	RecordedAt  time.Time  `json:"recorded_at,omitempty"`
}

// Validate checks required fields and the amount sign.
func (f FinanceRecord) Validate() error {
	if f.ID == "" {
		return errors.New("finance record: id is required")
	}
	if f.AmountCents <= 0 {
		return fmt.Errorf("finance record: amount must be positive, got %d", f.AmountCents)
	}
	if f.Kind != RecordIncome && f.Kind != RecordExpense {
		return fmt.Errorf("finance record: invalid kind %q", f.Kind)
	}
	return nil
}

// ChatMessage is a message in the group chat.
type ChatMessage struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// Validate checks required fields.
func (c ChatMessage) Validate() error {
	if c.ID == "" {
		return errors.New("chat message: id is required")
	}
	if strings.TrimSpace(c.Body) == "" {
		return errors.New("chat message: body is required")
	}
	return nil
}
