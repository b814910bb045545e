package coordinator

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// SubscribeRemote forwards the remote store's pushes for scope into the
// snapshot cache and the in-memory view, so other devices' writes show
// without polling. Subscribing twice is a no-op.
func (c *Coordinator) SubscribeRemote(ctx context.Context, scope offline.ScopeKey) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	st := c.state(scope)

	st.statusMu.Lock()
	subscribed := st.subscription != ""
	st.statusMu.Unlock()
	if subscribed {
		return nil
	}

	handle, err := c.remote.Subscribe(ctx, scope, func(items []offline.Entity) {
		c.onPush(scope, st, items)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", scope, err)
	}

	st.statusMu.Lock()
	if st.subscription != "" {
		st.statusMu.Unlock()
		return c.remote.Unsubscribe(handle)
	}
	st.subscription = handle
	st.statusMu.Unlock()

	c.logger.InfoContext(logging.WithScope(ctx, scope.String()), "subscribed to remote changes")
	return nil
}

// UnsubscribeRemote stops forwarding pushes for scope.
func (c *Coordinator) UnsubscribeRemote(scope offline.ScopeKey) error {
	handle := c.state(scope).takeSubscription()
	if handle == "" {
		return nil
	}
	return c.remote.Unsubscribe(handle)
}

// onPush takes a generation immediately so that a fetch started before the
// push cannot overwrite it, then commits off the remote's goroutine.
func (c *Coordinator) onPush(scope offline.ScopeKey, st *scopeState, items []offline.Entity) {
	gen := st.nextGeneration()
	items = offline.CloneEntities(items)

	if !c.spawn(func() { c.commitPush(scope, st, gen, items) }) {
		c.logger.Debug("ignoring remote push after stop", "scope", scope.String())
	}
}

func (c *Coordinator) commitPush(scope offline.ScopeKey, st *scopeState, gen uint64, items []offline.Entity) {
	ctx := logging.WithScope(context.Background(), scope.String())

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.commitLocked(gen, items, c.now()) {
		c.logger.DebugContext(ctx, "discarding superseded remote push", "generation", gen)
		return
	}
	if err := c.cache.Save(ctx, scope, items); err != nil {
		logging.LogPersistFailure(ctx, c.logger, "snapshot save", err)
	}
	st.setLoadState(offline.SessionLoaded)
	c.logger.DebugContext(ctx, "remote push applied", "items", len(items))
}
