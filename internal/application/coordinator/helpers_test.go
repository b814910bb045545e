package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/adapters/cache"
	outboxstore "github.com/jbctechsolutions/bandsync/internal/adapters/outbox"
	"github.com/jbctechsolutions/bandsync/internal/adapters/remote"
	"github.com/jbctechsolutions/bandsync/internal/application/outbox"
	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

var (
	bandA    = offline.MustScopeKey("events", "bandA")
	bandB    = offline.MustScopeKey("events", "bandB")
	chatA    = offline.MustScopeKey("chat", "bandA")
	setlistA = offline.MustScopeKey("setlists", "bandA")
)

// fakeConnectivity delivers transitions synchronously from Set.
type fakeConnectivity struct {
	mu           sync.Mutex
	state        offline.ConnectivityState
	onTransition ports.TransitionFunc
	probes       int
}

func (f *fakeConnectivity) Start(_ context.Context, onTransition ports.TransitionFunc) error {
	f.mu.Lock()
	f.onTransition = onTransition
	f.mu.Unlock()
	return nil
}

func (f *fakeConnectivity) Stop() {}

func (f *fakeConnectivity) Current() offline.ConnectivityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConnectivity) ProbeNow(context.Context) offline.ConnectivityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.state
}

func (f *fakeConnectivity) Set(state offline.ConnectivityState) {
	f.mu.Lock()
	changed := f.state != state
	f.state = state
	fn := f.onTransition
	f.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// gatedRemote reads the store immediately but holds the response of the
// fetch calls registered in gates until the gate channel is closed.
type gatedRemote struct {
	*remote.MemoryStore
	calls atomic.Int64

	mu    sync.Mutex
	gates map[int64]chan struct{}
}

func (g *gatedRemote) hold(call int64) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[int64]chan struct{})
	}
	ch := make(chan struct{})
	g.gates[call] = ch
	return ch
}

func (g *gatedRemote) Fetch(ctx context.Context, scope offline.ScopeKey) ([]offline.Entity, error) {
	n := g.calls.Add(1)
	items, err := g.MemoryStore.Fetch(ctx, scope)

	g.mu.Lock()
	gate := g.gates[n]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return items, err
}

// brokenCache is a snapshot cache whose writes always fail.
type brokenCache struct {
	ports.SnapshotCachePort
	saves atomic.Int64
}

func (b *brokenCache) Save(context.Context, offline.ScopeKey, []offline.Entity) error {
	b.saves.Add(1)
	return errors.New("disk full")
}

type harness struct {
	c      *Coordinator
	remote *remote.MemoryStore
	net    *fakeConnectivity
	cache  ports.SnapshotCachePort
	queue  *outbox.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := remote.NewMemoryStore()
	return newHarnessWith(t, store, store)
}

func newHarnessWith(t *testing.T, store *remote.MemoryStore, rs ports.RemoteStorePort) *harness {
	t.Helper()
	return newHarnessWithCache(t, store, rs, cache.NewMemorySnapshotCache())
}

func newHarnessWithCache(t *testing.T, store *remote.MemoryStore, rs ports.RemoteStorePort, snapshots ports.SnapshotCachePort) *harness {
	t.Helper()
	net := &fakeConnectivity{}
	queue := outbox.NewService(outboxstore.NewMemoryOutboxStore(), outbox.DefaultConfig())

	c := New(rs, snapshots, queue, net, Config{RemoteTimeout: time.Second})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(c.Stop)

	return &harness{c: c, remote: store, net: net, cache: snapshots, queue: queue}
}

func entity(id, data string) offline.Entity {
	return offline.Entity{ID: id, Data: json.RawMessage(data)}
}

func newMutation(t *testing.T, scope offline.ScopeKey, kind offline.OperationKind, id, payload string) offline.PendingMutation {
	t.Helper()
	m, err := offline.NewMutation(scope, kind, id, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("NewMutation() error = %v", err)
	}
	return *m
}

func ids(items []offline.Entity) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

func assertIDs(t *testing.T, items []offline.Entity, want ...string) {
	t.Helper()
	got := ids(items)
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func (h *harness) pending(t *testing.T, scope offline.ScopeKey) int {
	t.Helper()
	n, err := h.c.PendingCount(context.Background(), scope)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	return n
}
