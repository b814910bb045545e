package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/outbox"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Skipped   bool                 `json:"skipped"` // offline, nothing attempted
	Scopes    []outbox.DrainReport `json:"scopes"`
	Applied   int                  `json:"applied"`
	Dropped   int                  `json:"dropped"`
	Remaining int                  `json:"remaining"`
	Refreshed int                  `json:"refreshed"`
	Duration  time.Duration        `json:"duration"`
	Err       error                `json:"-"`
}

// Halted returns the scopes whose drain stopped before the queue was empty.
func (r ReconcileReport) Halted() []offline.ScopeKey {
	var out []offline.ScopeKey
	for _, s := range r.Scopes {
		if s.Halted {
			out = append(out, s.Scope)
		}
	}
	return out
}

// Reconcile drains the outbox of every entity type with queued writes and
// refreshes each scope whose queue became empty. Scopes drain concurrently;
// writes within a scope are replayed in enqueue order.
func (c *Coordinator) Reconcile(ctx context.Context) ReconcileReport {
	start := time.Now()
	report := ReconcileReport{}

	if c.CurrentConnectivity() != offline.Online {
		report.Skipped = true
		return report
	}

	types, err := c.outbox.EntityTypes(ctx)
	if err != nil {
		report.Err = fmt.Errorf("list pending entity types: %w", err)
		report.Duration = time.Since(start)
		return report
	}

	var errs []error
	for _, entityType := range types {
		drains, err := c.outbox.DrainAndRetry(logging.WithEntityType(ctx, entityType), entityType,
			c.applyRemote, outbox.WithScopeRunner(c.runDrain))
		if err != nil {
			errs = append(errs, err)
		}
		for _, d := range drains {
			report.Scopes = append(report.Scopes, d)
			report.Applied += d.Applied
			report.Dropped += d.Dropped
			report.Remaining += d.Remaining
			if refreshes(d) {
				report.Refreshed++
			}
			if d.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.Scope, d.Err))
			}
		}
	}

	report.Err = errors.Join(errs...)
	report.Duration = time.Since(start)
	c.logger.InfoContext(ctx, "reconciliation finished",
		"scopes", len(report.Scopes),
		"applied", report.Applied,
		"remaining", report.Remaining,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}

// drainScope replays scope's queue under its lock. Concurrent drains of the
// same scope share one replay.
func (c *Coordinator) drainScope(ctx context.Context, scope offline.ScopeKey) outbox.DrainReport {
	return c.runDrain(ctx, scope, func(ctx context.Context) outbox.DrainReport {
		return c.outbox.DrainScope(ctx, scope, c.applyRemote)
	})
}

// runDrain holds scope's lock around drain and refreshes the scope once its
// queue is empty.
func (c *Coordinator) runDrain(ctx context.Context, scope offline.ScopeKey, drain func(context.Context) outbox.DrainReport) outbox.DrainReport {
	v, _, _ := c.drains.Do(scope.String(), func() (any, error) {
		st := c.state(scope)

		st.mu.Lock()
		st.setDraining(true)
		report := drain(ctx)
		st.setDraining(false)
		st.mu.Unlock()

		if refreshes(report) {
			c.Refresh(ctx, scope)
		}
		return report, nil
	})
	return v.(outbox.DrainReport)
}

func refreshes(r outbox.DrainReport) bool {
	return r.Drained() && r.Applied+r.Dropped > 0
}
