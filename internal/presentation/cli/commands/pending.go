package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// NewPendingCmd creates the pending command for inspecting the outbox.
func NewPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending [entity-type [group-id]]",
		Short: "List writes waiting to sync",
		Long: `List queued writes, oldest first.

Without arguments every queued write is shown. Blocked writes were rejected
by the remote store and halt their scope until retried or discarded.`,
		Example: `  # Everything waiting to sync
  bandsync pending

  # One scope
  bandsync pending setlists band-42`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPendingList(cmd.Context(), args)
		},
	}

	cmd.AddCommand(NewPendingRetryCmd())
	cmd.AddCommand(NewPendingDiscardCmd())

	return cmd
}

func runPendingList(ctx context.Context, args []string) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var pending []offline.PendingMutation
	switch len(args) {
	case 2:
		scope, err := parseScope(args[0], args[1])
		if err != nil {
			return err
		}
		pending, err = container.Coordinator().Pending(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to list pending writes: %w", err)
		}
	default:
		types := group.EntityTypes
		if len(args) == 1 {
			if !group.IsEntityType(args[0]) {
				return fmt.Errorf("unknown entity type %q: must be one of %v", args[0], group.EntityTypes)
			}
			types = []string{args[0]}
		}
		for _, entityType := range types {
			ms, err := container.Outbox().PeekAll(ctx, entityType)
			if err != nil {
				return fmt.Errorf("failed to list pending writes: %w", err)
			}
			pending = append(pending, ms...)
		}
	}

	formatter := GetFormatter()
	if formatter.Format() == output.FormatJSON {
		if pending == nil {
			pending = []offline.PendingMutation{}
		}
		return formatter.JSON(map[string]any{
			"pending": pending,
			"count":   len(pending),
		})
	}
	output.NewReportRenderer(formatter).RenderPending(pending)
	return nil
}

// NewPendingRetryCmd creates the pending retry command.
func NewPendingRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <entity-type> <group-id>",
		Short: "Retry a scope's blocked writes",
		Long: `Return a scope's blocked writes to the queue. When online the scope is
drained immediately.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			scope, err := parseScope(args[0], args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			n, report, err := container.Coordinator().RetryBlocked(ctx, scope)
			if err != nil {
				return fmt.Errorf("failed to retry %s: %w", scope, err)
			}

			formatter := GetFormatter()
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(map[string]any{
					"scope":     scope.String(),
					"released":  n,
					"applied":   report.Applied,
					"remaining": report.Remaining,
				})
			}

			formatter.Info("Released %d blocked write(s) in %s", n, scope)
			if report.Applied > 0 || report.Remaining > 0 {
				formatter.Println("  %s %d applied, %d remaining", formatter.Dim("Drain:"), report.Applied, report.Remaining)
			}
			if report.Err != nil {
				formatter.Warning("Drain stopped: %v", report.Err)
			}
			return nil
		},
	}
}

// NewPendingDiscardCmd creates the pending discard command.
func NewPendingDiscardCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "discard <mutation-id>",
		Short: "Discard a queued write",
		Long: `Remove a queued write without sending it. The local view of its scope
drops the write's optimistic effect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("discarding loses the write; pass --yes to confirm")
			}
			container, err := requireContainer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			m, err := container.Coordinator().Discard(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to discard %s: %w", args[0], err)
			}

			formatter := GetFormatter()
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(m)
			}
			formatter.Success("Discarded %s %s of %s in %s", m.Kind, m.ID, m.EntityID, m.Scope)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "confirm the discard")

	return cmd
}
