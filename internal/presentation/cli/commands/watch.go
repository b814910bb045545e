package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/application"
	"github.com/jbctechsolutions/bandsync/internal/application/collection"
	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch <entity-type:group-id>...",
		Short: "Follow connectivity, remote changes and sync activity",
		Long: `Keep the engine running and print what it does.

The listed scopes are loaded, then subscribed to remote changes so other
devices' writes land in the cache as they happen. Every reconnect replays
queued writes and reloads the scopes.`,
		Example: `  # Follow a band's setlists and chat until interrupted
  bandsync watch setlists:band-42 chat:band-42

  # Watch for one minute
  bandsync watch events:band-42 --for 1m`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopes, err := parseScopeArgs(args)
			if err != nil {
				return err
			}
			container, err := requireContainer()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			wo := output.NewWatchOutput(
				output.WithWatchWriter(cmd.OutOrStdout()),
				output.WithWatchColor(output.IsColorSupported()),
			)
			return runWatch(ctx, container, scopes, wo)
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (default: until interrupted)")

	return cmd
}

func parseScopeArgs(args []string) ([]offline.ScopeKey, error) {
	scopes := make([]offline.ScopeKey, 0, len(args))
	seen := make(map[offline.ScopeKey]bool, len(args))
	for _, arg := range args {
		scope, err := offline.ParseScopeKey(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid scope %q: %w", arg, err)
		}
		if !group.IsEntityType(scope.EntityType) {
			return nil, fmt.Errorf("unknown entity type %q: must be one of %v", scope.EntityType, group.EntityTypes)
		}
		if seen[scope] {
			continue
		}
		seen[scope] = true
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

func runWatch(ctx context.Context, container *application.Container, scopes []offline.ScopeKey, wo *output.WatchOutput) error {
	coord := container.Coordinator()
	store := container.Remote()

	states, unsubscribe := container.Monitor().Subscribe()
	defer unsubscribe()

	wo.Start(scopes, coord.CurrentConnectivity())
	defer wo.Stop()

	for _, scope := range scopes {
		if err := coord.SubscribeRemote(ctx, scope); err != nil {
			wo.Failed(err)
			continue
		}
		defer coord.UnsubscribeRemote(scope)

		handle, err := store.Subscribe(ctx, scope, func(items []offline.Entity) {
			wo.Pushed(scope, len(items))
		})
		if err != nil {
			wo.Failed(err)
			continue
		}
		defer store.Unsubscribe(handle)
	}

	reload := func() {
		for _, scope := range scopes {
			res := coord.Load(ctx, scope)
			wo.Loaded(res, collection.LoadMessage(res))
		}
	}
	reload()

	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			wo.Transition(state)
			if state != offline.Online {
				continue
			}
			report := coord.Reconcile(ctx)
			wo.Reconciled(report)
			if report.Err != nil && ctx.Err() == nil {
				wo.Failed(report.Err)
			}
			reload()
		}
	}
}
