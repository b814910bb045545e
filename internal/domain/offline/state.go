package offline

import "time"

// ConnectivityState is the process-wide network reachability.
// The zero value is Offline so an uninitialized reader prefers the cache.
type ConnectivityState int

const (
	Offline ConnectivityState = iota
	Online
)

// String returns the lowercase state name.
func (s ConnectivityState) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Freshness is the tri-state outcome exposed to domain services.
type Freshness string

const (
	// Fresh data came from the remote store in this call.
	Fresh Freshness = "fresh"
	// Stale data was served from the snapshot cache.
	Stale Freshness = "stale"
	// Failed means no data could be produced.
	Failed Freshness = "failed"
)

// LoadResult is what a load returns to the domain service.
type LoadResult struct {
	Scope     ScopeKey
	Items     []Entity
	SavedAt   time.Time
	Freshness Freshness
	Reason    error // why the result is Stale or Failed
	Pending   int   // mutations for this scope still waiting to sync
}

// FromCache reports whether the result was served from the local snapshot.
func (r LoadResult) FromCache() bool {
	return r.Freshness == Stale
}

// MutateResult is what a mutate returns to the domain service.
type MutateResult struct {
	MutationID string
	Accepted   bool  // applied remotely or queued for later
	Queued     bool  // waiting in the outbox
	Reason     error // why it was queued or rejected
}

// SessionState tracks the in-flight status of a scope's sync session.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionLoading  SessionState = "loading"
	SessionLoaded   SessionState = "loaded"
	SessionFailed   SessionState = "failed"
	SessionDraining SessionState = "draining"
)
