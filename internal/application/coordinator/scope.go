package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// scopeState is the per-scope actor. mu is held for every cache or outbox
// write of the scope and for direct remote applies.
type scopeState struct {
	mu sync.Mutex

	// Confirmed collection, mirrored from the snapshot cache. Guarded by mu.
	items   []offline.Entity
	savedAt time.Time
	loaded  bool

	// started is bumped when a fetch begins or a push arrives; committed is
	// the generation of the data currently held. A result whose generation
	// is not newer than committed is discarded.
	started   atomic.Uint64
	committed uint64 // guarded by mu

	statusMu     sync.Mutex
	loadState    offline.SessionState
	draining     bool
	subscription ports.SubscriptionHandle
}

func (st *scopeState) nextGeneration() uint64 {
	return st.started.Add(1)
}

// commitLocked installs items if gen is newer than what is held.
// Callers hold st.mu.
func (st *scopeState) commitLocked(gen uint64, items []offline.Entity, at time.Time) bool {
	if gen <= st.committed {
		return false
	}
	st.committed = gen
	st.items = offline.CloneEntities(items)
	if st.items == nil {
		st.items = []offline.Entity{}
	}
	st.savedAt = at
	st.loaded = true
	return true
}

// forget drops the in-memory view. Callers hold st.mu.
func (st *scopeState) forget() {
	st.items = nil
	st.savedAt = time.Time{}
	st.loaded = false
}

func (st *scopeState) setLoadState(s offline.SessionState) {
	st.statusMu.Lock()
	st.loadState = s
	st.statusMu.Unlock()
}

func (st *scopeState) setDraining(d bool) {
	st.statusMu.Lock()
	st.draining = d
	st.statusMu.Unlock()
}

func (st *scopeState) session() offline.SessionState {
	st.statusMu.Lock()
	defer st.statusMu.Unlock()
	if st.draining {
		return offline.SessionDraining
	}
	return st.loadState
}

func (st *scopeState) takeSubscription() ports.SubscriptionHandle {
	st.statusMu.Lock()
	defer st.statusMu.Unlock()
	h := st.subscription
	st.subscription = ""
	return h
}
