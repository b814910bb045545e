// Package collection is the contract domain services use to reach the sync
// engine: a typed view of one entity type whose reads go through the
// coordinator's Load and whose writes go through its Mutate.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// Syncer is the part of the coordinator a collection needs.
type Syncer interface {
	Load(ctx context.Context, scope offline.ScopeKey) offline.LoadResult
	Mutate(ctx context.Context, m offline.PendingMutation) offline.MutateResult
	CurrentConnectivity() offline.ConnectivityState
	PendingCount(ctx context.Context, scope offline.ScopeKey) (int, error)
}

// Policy holds the business rules an entity type layers on top of the engine.
type Policy struct {
	// AllowOfflineEdits permits updates and deletes while offline.
	// Creates are always allowed.
	AllowOfflineEdits bool
}

// Config configures a collection.
type Config[T any] struct {
	Policy   Policy
	Validate func(T) error
	Logger   *logging.Logger
}

// Collection is a typed, group-scoped view of one entity type.
type Collection[T any] struct {
	entityType string
	sync       Syncer
	idOf       func(T) string
	config     Config[T]
	logger     *logging.Logger
}

// New creates a collection of entityType. idOf returns an item's id.
func New[T any](sync Syncer, entityType string, idOf func(T) string, config Config[T]) *Collection[T] {
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Collection[T]{
		entityType: entityType,
		sync:       sync,
		idOf:       idOf,
		config:     config,
		logger:     logger,
	}
}

// EntityType returns the entity type of the collection.
func (c *Collection[T]) EntityType() string {
	return c.entityType
}

// Scope returns the scope key of groupID's collection.
func (c *Collection[T]) Scope(groupID string) (offline.ScopeKey, error) {
	return offline.NewScopeKey(c.entityType, groupID)
}

// Load returns groupID's items. Items whose payload cannot be decoded are
// skipped and counted. The error is non-nil only for an invalid group id.
func (c *Collection[T]) Load(ctx context.Context, groupID string) (Result[T], error) {
	scope, err := c.Scope(groupID)
	if err != nil {
		return Result[T]{}, err
	}

	res := c.sync.Load(ctx, scope)
	out := Result[T]{
		Freshness: res.Freshness,
		Reason:    res.Reason,
		Pending:   res.Pending,
		SavedAt:   res.SavedAt,
		Items:     make([]T, 0, len(res.Items)),
	}
	for _, e := range res.Items {
		var item T
		if err := json.Unmarshal(e.Data, &item); err != nil {
			out.Skipped++
			c.logger.WarnContext(logging.WithScope(ctx, scope.String()), "skipping undecodable item",
				"entity_id", e.ID,
				"error", err.Error(),
			)
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// Create writes a new item.
func (c *Collection[T]) Create(ctx context.Context, groupID string, item T) (offline.MutateResult, error) {
	return c.write(ctx, groupID, offline.OpCreate, item)
}

// Update replaces an existing item.
func (c *Collection[T]) Update(ctx context.Context, groupID string, item T) (offline.MutateResult, error) {
	if err := c.checkOfflineEdit(); err != nil {
		return offline.MutateResult{}, err
	}
	return c.write(ctx, groupID, offline.OpUpdate, item)
}

// Delete removes an item.
func (c *Collection[T]) Delete(ctx context.Context, groupID, id string) (offline.MutateResult, error) {
	if err := c.checkOfflineEdit(); err != nil {
		return offline.MutateResult{}, err
	}
	scope, err := c.Scope(groupID)
	if err != nil {
		return offline.MutateResult{}, err
	}
	m, err := offline.NewMutation(scope, offline.OpDelete, id, nil)
	if err != nil {
		return offline.MutateResult{}, err
	}
	return c.sync.Mutate(ctx, *m), nil
}

// Pending returns the number of groupID's writes waiting to sync.
func (c *Collection[T]) Pending(ctx context.Context, groupID string) (int, error) {
	scope, err := c.Scope(groupID)
	if err != nil {
		return 0, err
	}
	return c.sync.PendingCount(ctx, scope)
}

func (c *Collection[T]) write(ctx context.Context, groupID string, kind offline.OperationKind, item T) (offline.MutateResult, error) {
	scope, err := c.Scope(groupID)
	if err != nil {
		return offline.MutateResult{}, err
	}
	if c.config.Validate != nil {
		if err := c.config.Validate(item); err != nil {
			return offline.MutateResult{}, err
		}
	}

	data, err := json.Marshal(item)
	if err != nil {
		return offline.MutateResult{}, domainerrors.NewError(domainerrors.CodeSerialization,
			fmt.Sprintf("encode %s", c.entityType), err)
	}
	m, err := offline.NewMutation(scope, kind, c.idOf(item), data)
	if err != nil {
		return offline.MutateResult{}, err
	}
	return c.sync.Mutate(ctx, *m), nil
}

func (c *Collection[T]) checkOfflineEdit() error {
	if c.config.Policy.AllowOfflineEdits {
		return nil
	}
	if c.sync.CurrentConnectivity() == offline.Offline {
		return fmt.Errorf("%s: %w", c.entityType, domainerrors.ErrOfflineEditNotAllowed)
	}
	return nil
}

// Result is a typed load result.
type Result[T any] struct {
	Items     []T
	Freshness offline.Freshness
	Reason    error
	Pending   int
	Skipped   int
	SavedAt   time.Time
}

// Message returns the text a UI shows for the result.
func (r Result[T]) Message() string {
	return describe(r.Freshness, r.Reason, r.Pending)
}

// LoadMessage returns the text a UI shows for an untyped load result.
func LoadMessage(r offline.LoadResult) string {
	return describe(r.Freshness, r.Reason, r.Pending)
}

func describe(freshness offline.Freshness, reason error, pending int) string {
	var msg string
	switch freshness {
	case offline.Fresh:
		msg = "Up to date"
	case offline.Stale:
		switch {
		case reason == nil:
			msg = "Loaded from cache"
		case errors.Is(reason, domainerrors.ErrOffline):
			msg = "Loaded from cache (offline mode)"
		default:
			msg = "Loaded from cache (sync failed)"
		}
	default:
		switch {
		case errors.Is(reason, domainerrors.ErrUnauthorized):
			msg = "You no longer have access to this group"
		default:
			msg = "Failed to load"
		}
	}
	return msg + pendingSuffix(pending)
}

// SaveMessage returns the text a UI shows after a write.
func SaveMessage(r offline.MutateResult) string {
	switch {
	case !r.Accepted && errors.Is(r.Reason, domainerrors.ErrUnauthorized):
		return "Failed to save: not allowed"
	case !r.Accepted:
		return "Failed to save"
	case r.Queued && errors.Is(r.Reason, domainerrors.ErrOffline):
		return "Saved offline, will sync when online"
	case r.Queued:
		return "Saved, waiting to sync"
	default:
		return "Saved"
	}
}

func pendingSuffix(n int) string {
	switch {
	case n == 1:
		return " · 1 change waiting to sync"
	case n > 1:
		return fmt.Sprintf(" · %d changes waiting to sync", n)
	default:
		return ""
	}
}
