package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// NewCacheCmd creates the cache command with its subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the snapshot cache",
		Long: `Inspect and manage the local snapshot cache.

The cache holds the last collection fetched for each scope and serves reads
while offline. Clearing it never touches writes waiting to sync.`,
	}

	cmd.AddCommand(NewCacheStatsCmd())
	cmd.AddCommand(NewCacheClearCmd())
	cmd.AddCommand(NewCacheSweepCmd())

	return cmd
}

// NewCacheStatsCmd creates the cache stats command.
func NewCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			stats, err := container.Coordinator().CacheStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get cache stats: %w", err)
			}

			formatter := GetFormatter()
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(stats)
			}
			output.NewReportRenderer(formatter).RenderCacheStats(stats)
			return nil
		},
	}
}

// NewCacheClearCmd creates the cache clear command.
func NewCacheClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [entity-type group-id]",
		Short: "Clear cached snapshots",
		Long: `Clear the cached snapshot of one scope, or of every scope with --all.
Queued writes are kept and still shown by the next load.`,
		Example: `  # Forget one scope
  bandsync cache clear finance band-42

  # Forget everything, e.g. on sign-out
  bandsync cache clear --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) != 0 {
				return fmt.Errorf("--all takes no arguments")
			}
			if !all && len(args) != 2 {
				return fmt.Errorf("requires <entity-type> <group-id> or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			formatter := GetFormatter()

			if all {
				if err := container.Coordinator().ClearAllCaches(ctx); err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				formatter.Success("Cache cleared")
				return nil
			}

			scope, err := parseScope(args[0], args[1])
			if err != nil {
				return err
			}
			if err := container.Coordinator().ClearCache(ctx, scope); err != nil {
				return fmt.Errorf("failed to clear %s: %w", scope, err)
			}
			formatter.Success("Cleared cached snapshot of %s", scope)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "clear every cached scope")

	return cmd
}

// NewCacheSweepCmd creates the cache sweep command.
func NewCacheSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove snapshots older than the cache horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			removed, err := container.Coordinator().Sweep(ctx)
			if err != nil {
				return fmt.Errorf("failed to sweep cache: %w", err)
			}

			formatter := GetFormatter()
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(map[string]int64{"removed": removed})
			}
			formatter.Success("Removed %d snapshot(s) older than %s", removed,
				output.FormatDuration(container.Config().Cache.Horizon))
			return nil
		},
	}
}
