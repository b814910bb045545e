// Package outbox implements the pending-mutation queue: durable enqueue,
// per-scope FIFO replay and the failure policy applied during replay.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/tracing"
)

// ErrBlocked is reported when a drain stops at a mutation waiting for user action.
var ErrBlocked = errors.New("mutation blocked pending user action")

// ApplyFunc sends one mutation to the remote store.
type ApplyFunc func(ctx context.Context, m offline.PendingMutation) error

// Resolution tells a drain what to do with a rejected mutation.
type Resolution int

const (
	// ResolutionKeep marks the mutation blocked and halts its scope.
	ResolutionKeep Resolution = iota
	// ResolutionDrop removes the mutation and continues with the next one.
	ResolutionDrop
)

// RejectionHandler decides the fate of a mutation the remote rejected with a
// non-retryable error (authorization, not found, validation).
type RejectionHandler func(ctx context.Context, m offline.PendingMutation, err error) Resolution

// KeepRejected is the default RejectionHandler.
func KeepRejected(context.Context, offline.PendingMutation, error) Resolution {
	return ResolutionKeep
}

// DropNotFound drops edits to entities the remote no longer has and keeps
// every other rejection for the user.
func DropNotFound(_ context.Context, _ offline.PendingMutation, err error) Resolution {
	if domainerrors.CodeOf(err) == domainerrors.CodeNotFound {
		return ResolutionDrop
	}
	return ResolutionKeep
}

// DrainReport summarizes the replay of one scope.
type DrainReport struct {
	Scope     offline.ScopeKey `json:"scope"`
	Applied   int              `json:"applied"`
	Failed    int              `json:"failed"`
	Dropped   int              `json:"dropped"`
	Blocked   int              `json:"blocked"`
	Remaining int              `json:"remaining"`
	Halted    bool             `json:"halted"`
	Err       error            `json:"-"`
	Duration  time.Duration    `json:"duration"`
}

// Drained reports whether the scope's queue is now empty.
func (r DrainReport) Drained() bool {
	return r.Remaining == 0 && r.Err == nil
}

// Config holds outbox service configuration.
type Config struct {
	Concurrency int              // Scopes drained in parallel by DrainAndRetry
	OnReject    RejectionHandler // Defaults to KeepRejected
	Logger      *logging.Logger
	Tracer      *tracing.Tracer
}

// DefaultConfig returns the default outbox configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		OnReject:    KeepRejected,
	}
}

// Service is the pending outbox.
type Service struct {
	store  ports.OutboxStorePort
	config Config
	logger *logging.Logger
	tracer *tracing.Tracer
}

// NewService creates an outbox service over store.
func NewService(store ports.OutboxStorePort, config Config) *Service {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.OnReject == nil {
		config.OnReject = KeepRejected
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = tracing.Default()
	}

	return &Service{
		store:  store,
		config: config,
		logger: logger,
		tracer: tracer,
	}
}

// Enqueue appends m to the end of its scope's queue. Mutations are never
// deduplicated or coalesced.
func (s *Service) Enqueue(ctx context.Context, m *offline.PendingMutation) error {
	if m == nil {
		return fmt.Errorf("enqueue: nil mutation")
	}
	if m.Scope.IsZero() {
		return domainerrors.ErrScopeRequired
	}
	if err := s.store.Append(ctx, m); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	s.logger.DebugContext(logging.WithMutationID(ctx, m.ID), "mutation enqueued",
		"scope", m.Scope.String(),
		"kind", string(m.Kind),
		"entity_id", m.EntityID,
	)
	return nil
}

// PeekAll returns every queued mutation of an entity type, oldest first.
func (s *Service) PeekAll(ctx context.Context, entityType string) ([]offline.PendingMutation, error) {
	return s.store.ListByEntityType(ctx, entityType)
}

// PeekScope returns every queued mutation of a scope, oldest first.
func (s *Service) PeekScope(ctx context.Context, scope offline.ScopeKey) ([]offline.PendingMutation, error) {
	return s.store.ListByScope(ctx, scope)
}

// Get returns a queued mutation by id.
func (s *Service) Get(ctx context.Context, id string) (*offline.PendingMutation, error) {
	return s.store.Get(ctx, id)
}

// Remove deletes a mutation.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// PendingCount returns the number of queued mutations of a scope.
func (s *Service) PendingCount(ctx context.Context, scope offline.ScopeKey) (int, error) {
	return s.store.CountByScope(ctx, scope)
}

// EntityTypes returns the entity types that have queued mutations.
func (s *Service) EntityTypes(ctx context.Context) ([]string, error) {
	return s.store.EntityTypes(ctx)
}

// Scopes returns the scopes of an entity type that have queued mutations.
func (s *Service) Scopes(ctx context.Context, entityType string) ([]offline.ScopeKey, error) {
	return s.store.Scopes(ctx, entityType)
}

// RetryBlocked returns a scope's blocked mutations to pending so the next
// drain attempts them again.
func (s *Service) RetryBlocked(ctx context.Context, scope offline.ScopeKey) (int, error) {
	n, err := s.store.Unblock(ctx, scope)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "blocked mutations released", "scope", scope.String(), "count", n)
	}
	return n, nil
}

// Discard removes a queued mutation at the user's request and returns it.
func (s *Service) Discard(ctx context.Context, id string) (*offline.PendingMutation, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.logger.InfoContext(logging.WithMutationID(ctx, id), "mutation discarded",
		"scope", m.Scope.String(),
		"kind", string(m.Kind),
	)
	return m, nil
}

// DrainScope replays a scope's queue oldest first until it is empty or a
// mutation cannot be applied. A later mutation of the scope is never sent
// before an earlier one has succeeded or been dropped.
//
// The caller must ensure no other drain or enqueue for scope runs concurrently.
func (s *Service) DrainScope(ctx context.Context, scope offline.ScopeKey, apply ApplyFunc) DrainReport {
	start := time.Now()
	ctx = logging.WithScope(ctx, scope.String())
	report := DrainReport{Scope: scope}

	pending, err := s.store.ListByScope(ctx, scope)
	if err != nil {
		report.Err = fmt.Errorf("drain %s: %w", scope, err)
		report.Halted = true
		report.Duration = time.Since(start)
		return report
	}
	report.Remaining = len(pending)
	if len(pending) == 0 {
		return report
	}

	ctx, span := s.tracer.StartDrainSpan(ctx, scope.String(), len(pending))

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			report.Halted = true
			report.Err = err
			break
		}
		if !s.replay(ctx, m, apply, &report) {
			break
		}
	}

	report.Duration = time.Since(start)
	span.SetResult(report.Applied, report.Dropped, report.Remaining, report.Halted)
	if report.Err != nil {
		span.EndWithError(report.Err)
	} else {
		span.End()
	}
	logging.LogDrain(ctx, s.logger, report.Applied, report.Remaining, report.Halted, report.Duration)

	return report
}

// replay handles one mutation and reports whether the drain may continue.
func (s *Service) replay(ctx context.Context, m offline.PendingMutation, apply ApplyFunc, report *DrainReport) bool {
	ctx = logging.WithMutationID(ctx, m.ID)

	if m.IsBlocked() {
		report.Blocked++
		report.Halted = true
		report.Err = fmt.Errorf("%w: %s (%s)", ErrBlocked, m.ID, m.LastError)
		return false
	}

	err := apply(ctx, m)
	if err == nil {
		if err := s.store.Delete(ctx, m.ID); err != nil {
			// Applied remotely but still queued; the id makes the next replay idempotent.
			report.Halted = true
			report.Err = fmt.Errorf("remove applied mutation %s: %w", m.ID, err)
			return false
		}
		report.Applied++
		report.Remaining--
		return true
	}

	// Cancellation is not the remote's verdict on the mutation.
	if ctx.Err() != nil {
		report.Halted = true
		report.Err = ctx.Err()
		return false
	}

	retries := m.RetryCount + 1
	logging.LogReplayFailure(ctx, s.logger, retries, err)

	switch code := domainerrors.CodeOf(err); {
	case domainerrors.IsRetryable(err):
		s.recordFailure(ctx, m.ID, retries, err, offline.MutationPending)
		report.Failed++
		report.Halted = true
		report.Err = err
		return false

	case code == domainerrors.CodeSerialization:
		s.logger.ErrorContext(ctx, "dropping mutation that cannot be serialized",
			"entity_id", m.EntityID,
			"error", err.Error(),
		)
		return s.drop(ctx, m, report)

	default:
		if s.config.OnReject(ctx, m, err) == ResolutionDrop {
			s.logger.WarnContext(ctx, "dropping rejected mutation",
				"code", string(code),
				"entity_id", m.EntityID,
			)
			return s.drop(ctx, m, report)
		}
		s.recordFailure(ctx, m.ID, retries, err, offline.MutationBlocked)
		report.Failed++
		report.Blocked++
		report.Halted = true
		report.Err = err
		return false
	}
}

func (s *Service) drop(ctx context.Context, m offline.PendingMutation, report *DrainReport) bool {
	if err := s.store.Delete(ctx, m.ID); err != nil {
		report.Halted = true
		report.Err = fmt.Errorf("drop mutation %s: %w", m.ID, err)
		return false
	}
	report.Dropped++
	report.Remaining--
	return true
}

func (s *Service) recordFailure(ctx context.Context, id string, retries int, cause error, status offline.MutationStatus) {
	if err := s.store.RecordFailure(ctx, id, retries, cause.Error(), status); err != nil {
		logging.LogPersistFailure(ctx, s.logger, "outbox retry state", err)
	}
}

// ScopeRunner runs one scope's drain. Callers that share the outbox with
// concurrent writers use it to hold the scope's lock around the replay.
type ScopeRunner func(ctx context.Context, scope offline.ScopeKey, drain func(context.Context) DrainReport) DrainReport

// DrainOption customizes DrainAndRetry.
type DrainOption func(*drainOptions)

type drainOptions struct {
	run ScopeRunner
}

// WithScopeRunner wraps every scope's replay in run.
func WithScopeRunner(run ScopeRunner) DrainOption {
	return func(o *drainOptions) {
		o.run = run
	}
}

// DrainAndRetry replays every scope of an entity type with queued mutations.
// Scopes are drained concurrently; order is only kept within a scope, and a
// failed scope never stops another one.
//
// Without WithScopeRunner the caller must ensure no other drain or enqueue
// for the same scopes runs concurrently.
func (s *Service) DrainAndRetry(ctx context.Context, entityType string, apply ApplyFunc, opts ...DrainOption) ([]DrainReport, error) {
	o := drainOptions{
		run: func(ctx context.Context, _ offline.ScopeKey, drain func(context.Context) DrainReport) DrainReport {
			return drain(ctx)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	scopes, err := s.store.Scopes(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("list scopes of %s: %w", entityType, err)
	}

	reports := make([]DrainReport, len(scopes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, scope := range scopes {
		g.Go(func() error {
			reports[i] = o.run(gctx, scope, func(ctx context.Context) DrainReport {
				return s.DrainScope(ctx, scope, apply)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}
