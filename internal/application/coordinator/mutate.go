package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// Mutate writes m. Online with nothing queued for the scope, m is applied
// remotely and the scope refreshed. Offline, behind earlier queued writes, or
// after a retryable failure, m is queued and shows in the scope's view until
// it is replayed. Non-retryable failures are returned unqueued.
func (c *Coordinator) Mutate(ctx context.Context, m offline.PendingMutation) offline.MutateResult {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.now().UTC()
	}
	m.Status = offline.MutationPending
	m.RetryCount = 0
	m.LastError = ""

	ctx = logging.WithScope(ctx, m.Scope.String())
	ctx = logging.WithMutationID(ctx, m.ID)
	ctx, span := c.tracer.StartMutateSpan(ctx, m.Scope.String(), string(m.Kind), m.ID)

	result := c.mutate(ctx, &m)

	span.SetQueued(result.Queued)
	if result.Accepted {
		span.End()
	} else {
		span.EndWithError(result.Reason)
	}
	logging.LogMutation(ctx, c.logger, string(m.Kind), result.Queued, result.Reason)

	return result
}

func (c *Coordinator) mutate(ctx context.Context, m *offline.PendingMutation) offline.MutateResult {
	result := offline.MutateResult{MutationID: m.ID}
	if err := validateMutation(*m); err != nil {
		result.Reason = domainerrors.NewError(domainerrors.CodeValidation, err.Error(), nil)
		return result
	}

	st := c.state(m.Scope)
	st.mu.Lock()

	queued, err := c.outbox.PendingCount(ctx, m.Scope)
	if err != nil {
		st.mu.Unlock()
		result.Reason = fmt.Errorf("count pending mutations: %w", err)
		return result
	}

	var reason error
	switch {
	case c.CurrentConnectivity() == offline.Offline:
		reason = domainerrors.ErrOffline
	case queued > 0:
		reason = ErrQueuedBehindPending
	default:
		err := c.applyRemote(ctx, *m)
		if err == nil {
			st.mu.Unlock()
			c.confirmApplied(ctx, st, *m)
			result.Accepted = true
			return result
		}
		if !domainerrors.IsRetryable(err) {
			st.mu.Unlock()
			result.Reason = err
			return result
		}
		reason = err
	}

	err = c.outbox.Enqueue(ctx, m)
	st.mu.Unlock()
	if err != nil {
		result.Reason = err
		return result
	}

	result.Accepted = true
	result.Queued = true
	result.Reason = reason
	return result
}

// confirmApplied refreshes the scope after a direct apply. When the refresh
// cannot reach the remote, the held view is patched in memory only so the
// write still shows.
func (c *Coordinator) confirmApplied(ctx context.Context, st *scopeState, m offline.PendingMutation) {
	if res := c.Refresh(ctx, m.Scope); res.Freshness == offline.Fresh {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loaded {
		st.items = offline.ApplyMutation(st.items, m)
	}
}

// applyRemote sends one mutation to the remote store, bounded by the remote timeout.
func (c *Coordinator) applyRemote(ctx context.Context, m offline.PendingMutation) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RemoteTimeout)
	defer cancel()
	return c.remote.Apply(ctx, m)
}

func validateMutation(m offline.PendingMutation) error {
	if err := m.Scope.Validate(); err != nil {
		return err
	}
	if _, err := offline.ParseOperationKind(string(m.Kind)); err != nil {
		return err
	}
	if m.EntityID == "" {
		return errors.New("mutation: entity id is required")
	}
	if m.Kind != offline.OpDelete {
		if len(m.Payload) == 0 {
			return fmt.Errorf("mutation: payload is required for %s", m.Kind)
		}
		if !json.Valid(m.Payload) {
			return errors.New("mutation: payload is not valid JSON")
		}
	}
	return nil
}
