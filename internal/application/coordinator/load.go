package coordinator

import (
	"context"
	"fmt"
	"time"

	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// Load returns scope's collection with pending writes applied.
//
// Offline, the snapshot cache is served (possibly empty) as Stale. Online,
// the remote store is fetched; on failure the cache is served as Stale with
// the failure as reason, or Failed when nothing is cached. Authorization
// failures are always Failed. Concurrent loads of one scope share a fetch.
func (c *Coordinator) Load(ctx context.Context, scope offline.ScopeKey) offline.LoadResult {
	return c.load(ctx, scope, false)
}

// Refresh fetches scope even if a load is already in flight. The in-flight
// load's result is discarded if it completes after this one.
func (c *Coordinator) Refresh(ctx context.Context, scope offline.ScopeKey) offline.LoadResult {
	return c.load(ctx, scope, true)
}

// LoadFromCache returns scope's cached collection without touching the network.
func (c *Coordinator) LoadFromCache(ctx context.Context, scope offline.ScopeKey) offline.LoadResult {
	if err := scope.Validate(); err != nil {
		return invalidScope(scope, err)
	}
	return c.loadCached(logging.WithScope(ctx, scope.String()), scope, nil)
}

func (c *Coordinator) load(ctx context.Context, scope offline.ScopeKey, forced bool) offline.LoadResult {
	start := time.Now()
	ctx = logging.WithScope(ctx, scope.String())
	ctx = logging.WithEntityType(ctx, scope.EntityType)
	ctx, span := c.tracer.StartLoadSpan(ctx, scope.String(), forced)

	var result offline.LoadResult
	switch {
	case scope.Validate() != nil:
		result = invalidScope(scope, scope.Validate())
	case c.CurrentConnectivity() == offline.Offline:
		result = c.loadCached(ctx, scope, domainerrors.ErrOffline)
	default:
		result = c.joinFetch(ctx, scope, forced)
	}

	span.SetCacheHit(result.FromCache())
	span.SetResult(string(result.Freshness), len(result.Items), result.Pending)
	if result.Freshness == offline.Failed {
		span.EndWithError(result.Reason)
	} else {
		span.End()
	}
	logging.LogLoad(ctx, c.logger, string(result.Freshness), len(result.Items), time.Since(start), result.Reason)

	return result
}

// joinFetch runs or joins the scope's fetch flight. A caller whose context
// ends first gets the cached collection instead.
func (c *Coordinator) joinFetch(ctx context.Context, scope offline.ScopeKey, forced bool) offline.LoadResult {
	key := scope.String()
	if forced {
		c.loads.Forget(key)
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (any, error) {
		return c.fetch(flightCtx, scope), nil
	})

	select {
	case res := <-ch:
		result := res.Val.(offline.LoadResult)
		result.Items = offline.CloneEntities(result.Items)
		return result
	case <-ctx.Done():
		return c.loadCached(context.WithoutCancel(ctx), scope, domainerrors.Transient("load abandoned", ctx.Err()))
	}
}

// fetch is one flight: fetch, then commit under the scope lock unless a
// newer fetch or push committed first.
func (c *Coordinator) fetch(ctx context.Context, scope offline.ScopeKey) offline.LoadResult {
	st := c.state(scope)
	gen := st.nextGeneration()
	st.setLoadState(offline.SessionLoading)

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.RemoteTimeout)
	items, err := c.remote.Fetch(fetchCtx, scope)
	cancel()
	if err != nil {
		return c.fallback(ctx, st, scope, err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.commitLocked(gen, items, c.now()) {
		if err := c.cache.Save(ctx, scope, items); err != nil {
			logging.LogPersistFailure(ctx, c.logger, "snapshot save", err)
		}
	} else {
		c.logger.DebugContext(ctx, "discarding superseded fetch result", "generation", gen)
	}
	st.setLoadState(offline.SessionLoaded)

	return c.resultLocked(ctx, st, scope, offline.Fresh, nil)
}

func (c *Coordinator) fallback(ctx context.Context, st *scopeState, scope offline.ScopeKey, cause error) offline.LoadResult {
	if isAuthorization(cause) {
		st.setLoadState(offline.SessionFailed)
		return c.failed(ctx, scope, cause)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, _, ok := c.confirmedLocked(ctx, st, scope); !ok {
		st.setLoadState(offline.SessionFailed)
		return c.failed(ctx, scope, cause)
	}
	st.setLoadState(offline.SessionLoaded)
	return c.resultLocked(ctx, st, scope, offline.Stale, cause)
}

// loadCached serves the confirmed collection, possibly empty, as Stale.
func (c *Coordinator) loadCached(ctx context.Context, scope offline.ScopeKey, reason error) offline.LoadResult {
	st := c.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	c.confirmedLocked(ctx, st, scope)
	st.setLoadState(offline.SessionLoaded)
	return c.resultLocked(ctx, st, scope, offline.Stale, reason)
}

// resultLocked builds a result from the held collection and the scope's
// pending writes. Callers hold st.mu.
func (c *Coordinator) resultLocked(ctx context.Context, st *scopeState, scope offline.ScopeKey, freshness offline.Freshness, reason error) offline.LoadResult {
	pending, err := c.outbox.PeekScope(ctx, scope)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read pending mutations", "error", err.Error())
	}

	items := offline.Overlay(st.items, pending)
	if items == nil {
		items = []offline.Entity{}
	}
	return offline.LoadResult{
		Scope:     scope,
		Items:     items,
		SavedAt:   st.savedAt,
		Freshness: freshness,
		Reason:    reason,
		Pending:   len(pending),
	}
}

func (c *Coordinator) failed(ctx context.Context, scope offline.ScopeKey, cause error) offline.LoadResult {
	n, err := c.outbox.PendingCount(ctx, scope)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to count pending mutations", "error", err.Error())
	}
	return offline.LoadResult{
		Scope:     scope,
		Freshness: offline.Failed,
		Reason:    cause,
		Pending:   n,
	}
}

func invalidScope(scope offline.ScopeKey, err error) offline.LoadResult {
	return offline.LoadResult{
		Scope:     scope,
		Freshness: offline.Failed,
		Reason:    fmt.Errorf("%w: %v", domainerrors.ErrScopeRequired, err),
	}
}
