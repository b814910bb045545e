package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

var bandA = offline.MustScopeKey("events", "bandA")

func mutation(t *testing.T, kind offline.OperationKind, entityID, payload string) offline.PendingMutation {
	t.Helper()
	m, err := offline.NewMutation(bandA, kind, entityID, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("NewMutation() error = %v", err)
	}
	return *m
}

func TestMemoryStore_ApplyAndFetch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	items, err := store.Fetch(ctx, bandA)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("Fetch() of unknown scope = %v, want empty non-nil", items)
	}

	steps := []offline.PendingMutation{
		mutation(t, offline.OpCreate, "e1", `{"title":"Soundcheck"}`),
		mutation(t, offline.OpCreate, "e2", `{"title":"Gig"}`),
		mutation(t, offline.OpUpdate, "e1", `{"title":"Late soundcheck"}`),
		mutation(t, offline.OpDelete, "e2", ""),
	}
	for _, m := range steps {
		if err := store.Apply(ctx, m); err != nil {
			t.Fatalf("Apply(%s %s) error = %v", m.Kind, m.EntityID, err)
		}
	}

	items, _ = store.Fetch(ctx, bandA)
	if len(items) != 1 || items[0].ID != "e1" || string(items[0].Data) != `{"title":"Late soundcheck"}` {
		t.Errorf("Fetch() = %+v", items)
	}
	if got := store.FetchCount(); got != 2 {
		t.Errorf("FetchCount() = %d, want 2", got)
	}
	if got := len(store.Applied()); got != 4 {
		t.Errorf("len(Applied()) = %d, want 4", got)
	}
}

func TestMemoryStore_DeduplicatesByMutationID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	m := mutation(t, offline.OpCreate, "c1", `{"body":"hello"}`)

	for i := 0; i < 3; i++ {
		if err := store.Apply(ctx, m); err != nil {
			t.Fatalf("Apply() attempt %d error = %v", i, err)
		}
	}

	if got := len(store.Items(bandA)); got != 1 {
		t.Errorf("items = %d, want 1", got)
	}
	if got := store.ApplyCount(); got != 3 {
		t.Errorf("ApplyCount() = %d, want 3", got)
	}
	if got := len(store.Applied()); got != 1 {
		t.Errorf("len(Applied()) = %d, want 1", got)
	}
}

func TestMemoryStore_ApplyErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Apply(ctx, mutation(t, offline.OpCreate, "e1", `{}`)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		m    offline.PendingMutation
		want error
	}{
		{"duplicate create", mutation(t, offline.OpCreate, "e1", `{}`), domainerrors.ErrInvalid},
		{"update missing", mutation(t, offline.OpUpdate, "e9", `{}`), domainerrors.ErrNotFound},
		{"delete missing", mutation(t, offline.OpDelete, "e9", ""), domainerrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Apply(ctx, tt.m)
			if !errors.Is(err, tt.want) {
				t.Errorf("Apply() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMemoryStore_FaultInjection(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.FailFetch(domainerrors.ErrTransientNetwork)
	if _, err := store.Fetch(ctx, bandA); !errors.Is(err, domainerrors.ErrTransientNetwork) {
		t.Errorf("first Fetch() error = %v, want transient", err)
	}
	if _, err := store.Fetch(ctx, bandA); err != nil {
		t.Errorf("second Fetch() error = %v, want nil", err)
	}

	m := mutation(t, offline.OpCreate, "e1", `{}`)
	store.FailApply(domainerrors.ErrUnauthorized)
	if err := store.Apply(ctx, m); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Errorf("Apply() error = %v, want unauthorized", err)
	}
	if err := store.Apply(ctx, m); err != nil {
		t.Errorf("Apply() after injected failure error = %v", err)
	}
}

func TestMemoryStore_LatencyHonorsContext(t *testing.T) {
	store := NewMemoryStore()
	store.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := store.Fetch(ctx, bandA)
	if !domainerrors.IsRetryable(err) {
		t.Errorf("Fetch() error = %v, want retryable", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Fetch() ignored context deadline")
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var mu sync.Mutex
	var pushes [][]offline.Entity
	handle, err := store.Subscribe(ctx, bandA, func(items []offline.Entity) {
		mu.Lock()
		defer mu.Unlock()
		pushes = append(pushes, items)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	other := offline.MustScopeKey("chat", "bandA")
	store.Put(other, []offline.Entity{{ID: "c1", Data: json.RawMessage(`{}`)}})
	if err := store.Apply(ctx, mutation(t, offline.OpCreate, "e1", `{"title":"x"}`)); err != nil {
		t.Fatal(err)
	}
	store.Put(bandA, nil)

	mu.Lock()
	got := len(pushes)
	first := pushes[0]
	mu.Unlock()
	if got != 2 {
		t.Fatalf("pushes = %d, want 2", got)
	}
	if len(first) != 1 || first[0].ID != "e1" {
		t.Errorf("first push = %+v", first)
	}

	if err := store.Unsubscribe(handle); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if store.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", store.Subscribers())
	}
	store.Put(bandA, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(pushes) != 2 {
		t.Errorf("push delivered after unsubscribe")
	}
}

func TestMemoryStore_PushesArriveInCommitOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int
	if _, err := store.Subscribe(ctx, bandA, func(items []offline.Entity) {
		mu.Lock()
		sizes = append(sizes, len(items))
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	const writers = 50
	muts := make([]offline.PendingMutation, writers)
	for i := range muts {
		muts[i] = mutation(t, offline.OpCreate, fmt.Sprintf("e%d", i), `{}`)
	}

	var wg sync.WaitGroup
	for _, m := range muts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Apply(ctx, m); err != nil {
				t.Errorf("Apply(%s) error = %v", m.EntityID, err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(sizes) != writers {
		t.Fatalf("got %d pushes, want %d", len(sizes), writers)
	}
	for i, n := range sizes {
		if n != i+1 {
			t.Fatalf("push %d carried %d items, want %d: an older collection arrived after a newer one", i, n, i+1)
		}
	}
}
