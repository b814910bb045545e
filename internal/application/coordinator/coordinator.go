// Package coordinator implements the sync coordinator: the single entry point
// through which domain services read and write group data. It decides between
// the remote store, the snapshot cache and the pending outbox based on
// connectivity, and reconciles queued writes when the network returns.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jbctechsolutions/bandsync/internal/application/outbox"
	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/tracing"
)

// ErrQueuedBehindPending is the reason a mutation was queued while online:
// earlier mutations of its scope have not been applied yet.
var ErrQueuedBehindPending = errors.New("queued behind earlier pending mutations")

// Prober is implemented by connectivity monitors that can re-check
// reachability on demand.
type Prober interface {
	ProbeNow(ctx context.Context) offline.ConnectivityState
}

// Config holds coordinator configuration.
type Config struct {
	RemoteTimeout time.Duration // Bound on every remote call
	CacheHorizon  time.Duration // Snapshots older than this are swept
	SweepPeriod   time.Duration // Zero disables the background sweep
	Logger        *logging.Logger
	Tracer        *tracing.Tracer
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		RemoteTimeout: 10 * time.Second,
		CacheHorizon:  30 * 24 * time.Hour,
		SweepPeriod:   time.Hour,
	}
}

// Coordinator routes loads and mutations between the remote store, the
// snapshot cache and the outbox. All cache and outbox writes for one scope
// are serialized; different scopes proceed in parallel.
type Coordinator struct {
	remote       ports.RemoteStorePort
	cache        ports.SnapshotCachePort
	outbox       *outbox.Service
	connectivity ports.ConnectivityPort
	config       Config
	logger       *logging.Logger
	tracer       *tracing.Tracer

	loads  singleflight.Group
	drains singleflight.Group

	mu     sync.Mutex
	scopes map[offline.ScopeKey]*scopeState

	// Lifecycle
	runCtx  context.Context
	cancel  context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopping bool // Set by Stop; no background work starts afterwards

	now func() time.Time
}

// New creates a coordinator.
func New(remote ports.RemoteStorePort, cache ports.SnapshotCachePort, queue *outbox.Service, connectivity ports.ConnectivityPort, config Config) *Coordinator {
	defaults := DefaultConfig()
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = defaults.RemoteTimeout
	}
	if config.CacheHorizon <= 0 {
		config.CacheHorizon = defaults.CacheHorizon
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = tracing.Default()
	}

	return &Coordinator{
		remote:       remote,
		cache:        cache,
		outbox:       queue,
		connectivity: connectivity,
		config:       config,
		logger:       logger,
		tracer:       tracer,
		scopes:       make(map[offline.ScopeKey]*scopeState),
		runCtx:       context.Background(),
		now:          time.Now,
	}
}

// Start begins observing connectivity. Every Offline to Online edge triggers
// a reconciliation in the background. Start also runs the periodic cache sweep.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	c.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.runCtx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	if c.config.SweepPeriod > 0 {
		c.spawn(func() { c.sweepLoop(runCtx) })
	}

	if err := c.connectivity.Start(ctx, c.onTransition); err != nil {
		cancel()
		return fmt.Errorf("start connectivity monitor: %w", err)
	}
	return nil
}

// Stop ends connectivity observation, cancels remote subscriptions and waits
// for background work to finish.
func (c *Coordinator) Stop() {
	c.connectivity.Stop()

	c.mu.Lock()
	c.stopping = true
	cancel := c.cancel
	var handles []ports.SubscriptionHandle
	for _, st := range c.scopes {
		if h := st.takeSubscription(); h != "" {
			handles = append(handles, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handles {
		if err := c.remote.Unsubscribe(h); err != nil {
			c.logger.Warn("failed to cancel remote subscription", "error", err.Error())
		}
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Wait blocks until background reconciliations and push commits finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) onTransition(state offline.ConnectivityState) {
	if state != offline.Online {
		return
	}

	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	c.spawn(func() {
		ctx := logging.WithCorrelationID(ctx, uuid.New().String())
		report := c.Reconcile(ctx)
		if report.Err != nil {
			c.logger.WarnContext(ctx, "reconciliation after reconnect incomplete", "error", report.Err.Error())
		}
	})
}

// spawn runs fn on a goroutine Stop waits for. It reports false, and does
// nothing, once Stop has begun.
func (c *Coordinator) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Coordinator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				c.logger.WarnContext(ctx, "cache sweep failed", "error", err.Error())
			}
		}
	}
}

// CurrentConnectivity returns the connectivity state every component sees.
func (c *Coordinator) CurrentConnectivity() offline.ConnectivityState {
	return c.connectivity.Current()
}

// Foreground re-checks connectivity, if the monitor supports it, and
// reconciles when online. Apps call it when they return to the foreground.
func (c *Coordinator) Foreground(ctx context.Context) ReconcileReport {
	if p, ok := c.connectivity.(Prober); ok {
		p.ProbeNow(ctx)
	}
	return c.Reconcile(ctx)
}

// PendingCount returns the number of writes of scope waiting to sync.
func (c *Coordinator) PendingCount(ctx context.Context, scope offline.ScopeKey) (int, error) {
	return c.outbox.PendingCount(ctx, scope)
}

// Pending returns the writes of scope waiting to sync, oldest first.
func (c *Coordinator) Pending(ctx context.Context, scope offline.ScopeKey) ([]offline.PendingMutation, error) {
	return c.outbox.PeekScope(ctx, scope)
}

// Session returns the state of scope's sync session.
func (c *Coordinator) Session(scope offline.ScopeKey) offline.SessionState {
	return c.state(scope).session()
}

// View returns the confirmed collection of scope with pending writes applied,
// as the UI should show it. It never touches the network.
func (c *Coordinator) View(ctx context.Context, scope offline.ScopeKey) ([]offline.Entity, error) {
	st := c.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	items, _, _ := c.confirmedLocked(ctx, st, scope)
	pending, err := c.outbox.PeekScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", scope, err)
	}
	return offline.Overlay(items, pending), nil
}

// RetryBlocked releases scope's blocked mutations and, when online, drains
// the scope right away.
func (c *Coordinator) RetryBlocked(ctx context.Context, scope offline.ScopeKey) (int, outbox.DrainReport, error) {
	st := c.state(scope)
	st.mu.Lock()
	n, err := c.outbox.RetryBlocked(ctx, scope)
	st.mu.Unlock()
	if err != nil {
		return 0, outbox.DrainReport{Scope: scope}, fmt.Errorf("retry blocked %s: %w", scope, err)
	}

	if c.CurrentConnectivity() != offline.Online {
		return n, outbox.DrainReport{Scope: scope}, nil
	}
	return n, c.drainScope(ctx, scope), nil
}

// Discard drops a queued mutation. The in-memory view no longer shows it.
func (c *Coordinator) Discard(ctx context.Context, id string) (*offline.PendingMutation, error) {
	m, err := c.outbox.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	st := c.state(m.Scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	return c.outbox.Discard(ctx, id)
}

// ClearCache removes scope's snapshot and forgets its in-memory view.
func (c *Coordinator) ClearCache(ctx context.Context, scope offline.ScopeKey) error {
	st := c.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := c.cache.Invalidate(ctx, scope); err != nil {
		return fmt.Errorf("clear cache %s: %w", scope, err)
	}
	st.forget()
	return nil
}

// ClearAllCaches removes every snapshot and in-memory view.
func (c *Coordinator) ClearAllCaches(ctx context.Context) error {
	if err := c.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	c.mu.Lock()
	states := make([]*scopeState, 0, len(c.scopes))
	for _, st := range c.scopes {
		states = append(states, st)
	}
	c.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		st.forget()
		st.mu.Unlock()
	}
	return nil
}

// Sweep removes snapshots older than the cache horizon.
func (c *Coordinator) Sweep(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.config.CacheHorizon)
	n, err := c.cache.Sweep(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep cache: %w", err)
	}
	if n > 0 {
		c.logger.InfoContext(ctx, "swept stale snapshots", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// CacheStats returns snapshot cache statistics.
func (c *Coordinator) CacheStats(ctx context.Context) (*ports.CacheStats, error) {
	return c.cache.Stats(ctx)
}

// state returns the per-scope state, creating it on first use.
func (c *Coordinator) state(scope offline.ScopeKey) *scopeState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.scopes[scope]
	if !ok {
		st = &scopeState{loadState: offline.SessionIdle}
		c.scopes[scope] = st
	}
	return st
}

// confirmedLocked returns the last confirmed collection of scope, reading
// through to the snapshot cache when nothing is held in memory. Callers hold st.mu.
func (c *Coordinator) confirmedLocked(ctx context.Context, st *scopeState, scope offline.ScopeKey) ([]offline.Entity, time.Time, bool) {
	if st.loaded {
		return st.items, st.savedAt, true
	}

	snap, err := c.cache.Load(ctx, scope)
	if err != nil {
		logging.LogPersistFailure(ctx, c.logger, "snapshot read", err)
		return nil, time.Time{}, false
	}
	if snap == nil {
		logging.LogCacheMiss(ctx, c.logger, scope.String())
		return nil, time.Time{}, false
	}
	logging.LogCacheHit(ctx, c.logger, scope.String(), len(snap.Items))

	st.items = snap.Items
	st.savedAt = snap.SavedAt
	st.loaded = true
	return st.items, st.savedAt, true
}

// isAuthorization reports whether err must be surfaced without a cache fallback.
func isAuthorization(err error) bool {
	return domainerrors.CodeOf(err) == domainerrors.CodeAuthorization
}
