package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// MemoryStore is an authoritative in-process store. It deduplicates applies
// by mutation id and pushes the full collection to subscribers after every
// change. Failures and latency can be injected for tests and demos.
type MemoryStore struct {
	mu        sync.Mutex
	pushMu    sync.Mutex // Held while delivering, so pushes arrive in commit order
	data      map[offline.ScopeKey][]offline.Entity
	applied   map[string]struct{}
	log       []offline.PendingMutation
	subs      map[ports.SubscriptionHandle]memorySub
	fetchErrs []error
	applyErrs []error
	latency   time.Duration

	fetchCount atomic.Int64
	applyCount atomic.Int64
}

type memorySub struct {
	scope  offline.ScopeKey
	onPush ports.PushFunc
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[offline.ScopeKey][]offline.Entity),
		applied: make(map[string]struct{}),
		subs:    make(map[ports.SubscriptionHandle]memorySub),
	}
}

// Fetch returns a copy of the scope's collection. An unknown scope is empty.
func (s *MemoryStore) Fetch(ctx context.Context, scope offline.ScopeKey) ([]offline.Entity, error) {
	s.fetchCount.Add(1)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := pop(&s.fetchErrs); err != nil {
		return nil, err
	}
	items := offline.CloneEntities(s.data[scope])
	if items == nil {
		items = []offline.Entity{}
	}
	return items, nil
}

// Apply performs m. Replaying an already applied mutation id is a no-op.
func (s *MemoryStore) Apply(ctx context.Context, m offline.PendingMutation) error {
	_, err := s.apply(ctx, m)
	return err
}

// apply performs m and reports whether it was a duplicate.
func (s *MemoryStore) apply(ctx context.Context, m offline.PendingMutation) (bool, error) {
	s.applyCount.Add(1)
	if err := s.wait(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	if err := pop(&s.applyErrs); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if _, ok := s.applied[m.ID]; ok && m.ID != "" {
		s.mu.Unlock()
		return true, nil
	}

	items := s.data[m.Scope]
	exists := false
	for _, e := range items {
		if e.ID == m.EntityID {
			exists = true
			break
		}
	}

	switch m.Kind {
	case offline.OpCreate:
		if exists {
			s.mu.Unlock()
			return false, domainerrors.NewError(domainerrors.CodeValidation,
				fmt.Sprintf("%s %s already exists", m.Scope.EntityType, m.EntityID), nil)
		}
	case offline.OpUpdate, offline.OpDelete:
		if !exists {
			s.mu.Unlock()
			return false, domainerrors.NewError(domainerrors.CodeNotFound,
				fmt.Sprintf("%s %s not found", m.Scope.EntityType, m.EntityID), nil)
		}
	default:
		s.mu.Unlock()
		return false, domainerrors.NewError(domainerrors.CodeValidation,
			fmt.Sprintf("unknown operation kind %q", m.Kind), nil)
	}

	s.data[m.Scope] = offline.ApplyMutation(items, m)
	if m.ID != "" {
		s.applied[m.ID] = struct{}{}
	}
	s.log = append(s.log, m)
	pushes := s.pushesLocked(m.Scope)
	s.pushMu.Lock()
	s.mu.Unlock()

	deliver(pushes)
	s.pushMu.Unlock()
	return false, nil
}

// Subscribe registers onPush for changes to scope. Pushes are delivered in
// the order the changes were made; onPush must not call back into the store.
func (s *MemoryStore) Subscribe(_ context.Context, scope offline.ScopeKey, onPush ports.PushFunc) (ports.SubscriptionHandle, error) {
	if onPush == nil {
		return "", fmt.Errorf("subscribe %s: push callback is required", scope)
	}
	handle := ports.SubscriptionHandle(uuid.New().String())

	s.mu.Lock()
	s.subs[handle] = memorySub{scope: scope, onPush: onPush}
	s.mu.Unlock()

	return handle, nil
}

// Unsubscribe cancels a subscription. Unknown handles are ignored.
func (s *MemoryStore) Unsubscribe(handle ports.SubscriptionHandle) error {
	s.mu.Lock()
	delete(s.subs, handle)
	s.mu.Unlock()
	return nil
}

// Put replaces a scope's collection as if another device had written it,
// and notifies subscribers.
func (s *MemoryStore) Put(scope offline.ScopeKey, items []offline.Entity) {
	s.mu.Lock()
	s.data[scope] = offline.CloneEntities(items)
	pushes := s.pushesLocked(scope)
	s.pushMu.Lock()
	s.mu.Unlock()

	deliver(pushes)
	s.pushMu.Unlock()
}

// Items returns a copy of a scope's collection without counting a fetch.
func (s *MemoryStore) Items(scope offline.ScopeKey) []offline.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return offline.CloneEntities(s.data[scope])
}

// Applied returns every mutation applied so far, in apply order.
func (s *MemoryStore) Applied() []offline.PendingMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]offline.PendingMutation(nil), s.log...)
}

// FailFetch makes the next len(errs) fetches fail with errs in order.
func (s *MemoryStore) FailFetch(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErrs = append(s.fetchErrs, errs...)
}

// FailApply makes the next len(errs) applies fail with errs in order.
func (s *MemoryStore) FailApply(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErrs = append(s.applyErrs, errs...)
}

// SetLatency delays every fetch and apply by d.
func (s *MemoryStore) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FetchCount returns the number of fetches issued.
func (s *MemoryStore) FetchCount() int64 {
	return s.fetchCount.Load()
}

// ApplyCount returns the number of applies issued, including failed ones.
func (s *MemoryStore) ApplyCount() int64 {
	return s.applyCount.Load()
}

// Subscribers returns the number of active subscriptions.
func (s *MemoryStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemoryStore) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domainerrors.Transient("remote store did not respond", ctx.Err())
	case <-timer.C:
		return nil
	}
}

type push struct {
	onPush ports.PushFunc
	items  []offline.Entity
}

func (s *MemoryStore) pushesLocked(scope offline.ScopeKey) []push {
	var out []push
	for _, sub := range s.subs {
		if sub.scope == scope {
			items := offline.CloneEntities(s.data[scope])
			if items == nil {
				items = []offline.Entity{}
			}
			out = append(out, push{onPush: sub.onPush, items: items})
		}
	}
	return out
}

func deliver(pushes []push) {
	for _, p := range pushes {
		p.onPush(p.items)
	}
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

// Ensure MemoryStore implements RemoteStorePort
var _ ports.RemoteStorePort = (*MemoryStore)(nil)
