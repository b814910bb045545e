// Package ports defines the application layer port interfaces following hexagonal architecture.
package ports

import (
	"context"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// SubscriptionHandle identifies a remote push subscription.
type SubscriptionHandle string

// PushFunc receives the full collection of a scope whenever the remote store
// reports a change.
type PushFunc func(items []offline.Entity)

// RemoteStorePort defines the authoritative backend the engine syncs against.
type RemoteStorePort interface {
	// Fetch returns the current collection for a scope.
	Fetch(ctx context.Context, scope offline.ScopeKey) ([]offline.Entity, error)

	// Apply performs a single mutation. Implementations should deduplicate by
	// mutation ID when the underlying store supports it.
	Apply(ctx context.Context, m offline.PendingMutation) error

	// Subscribe registers onPush for changes to scope.
	Subscribe(ctx context.Context, scope offline.ScopeKey, onPush PushFunc) (SubscriptionHandle, error)

	// Unsubscribe cancels a subscription.
	Unsubscribe(handle SubscriptionHandle) error
}

// OutboxStorePort defines durable storage for pending mutations.
// Listing methods return mutations oldest first.
type OutboxStorePort interface {
	// Append adds a mutation to the end of the queue.
	Append(ctx context.Context, m *offline.PendingMutation) error

	// Get returns a mutation by id.
	Get(ctx context.Context, id string) (*offline.PendingMutation, error)

	// ListByEntityType returns every queued mutation for an entity type.
	ListByEntityType(ctx context.Context, entityType string) ([]offline.PendingMutation, error)

	// ListByScope returns every queued mutation for a scope.
	ListByScope(ctx context.Context, scope offline.ScopeKey) ([]offline.PendingMutation, error)

	// Delete removes a mutation. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// RecordFailure stores the outcome of a failed replay attempt.
	RecordFailure(ctx context.Context, id string, retryCount int, lastErr string, status offline.MutationStatus) error

	// Unblock returns every blocked mutation of a scope to pending.
	Unblock(ctx context.Context, scope offline.ScopeKey) (int, error)

	// CountByScope returns the number of queued mutations for a scope.
	CountByScope(ctx context.Context, scope offline.ScopeKey) (int, error)

	// EntityTypes returns the entity types that have queued mutations.
	EntityTypes(ctx context.Context) ([]string, error)

	// Scopes returns the scopes of an entity type that have queued mutations,
	// ordered by their oldest mutation.
	Scopes(ctx context.Context, entityType string) ([]offline.ScopeKey, error)
}

// TransitionFunc is called on every connectivity edge.
type TransitionFunc func(state offline.ConnectivityState)

// ConnectivityPort observes network reachability.
type ConnectivityPort interface {
	// Start begins observing and calls onTransition once per state change.
	Start(ctx context.Context, onTransition TransitionFunc) error

	// Stop ends observation.
	Stop()

	// Current returns the last observed state.
	Current() offline.ConnectivityState
}
