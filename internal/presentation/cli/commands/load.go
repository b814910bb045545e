package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/application/collection"
	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// LoadOutput is the JSON form of a load result.
type LoadOutput struct {
	Scope     string           `json:"scope"`
	Freshness string           `json:"freshness"`
	Message   string           `json:"message"`
	Reason    string           `json:"reason,omitempty"`
	SavedAt   *time.Time       `json:"saved_at,omitempty"`
	Pending   int              `json:"pending"`
	Items     []offline.Entity `json:"items"`
}

// NewLoadCmd creates the load command.
func NewLoadCmd() *cobra.Command {
	var cacheOnly bool
	var refresh bool

	cmd := &cobra.Command{
		Use:   "load <entity-type> <group-id>",
		Short: "Load a group's collection",
		Long: `Load one entity type of a group.

When online the collection is fetched from the remote store and cached.
When offline, or when the fetch fails, the last cached copy is returned and
marked stale. Writes still waiting to sync are shown on top of the result.

Entity types: events, setlists, finance, chat.`,
		Example: `  # Load a band's setlists
  bandsync load setlists band-42

  # Read only the local snapshot
  bandsync load events band-42 --cache-only`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cacheOnly && refresh {
				return fmt.Errorf("--cache-only and --refresh are mutually exclusive")
			}
			scope, err := parseScope(args[0], args[1])
			if err != nil {
				return err
			}
			return runLoad(cmd.Context(), scope, cacheOnly, refresh)
		},
	}

	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "read the local snapshot without contacting the remote store")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "start a new fetch instead of joining one in flight")

	return cmd
}

func runLoad(ctx context.Context, scope offline.ScopeKey, cacheOnly, refresh bool) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	coord := container.Coordinator()

	var res offline.LoadResult
	switch {
	case cacheOnly:
		res = coord.LoadFromCache(ctx, scope)
	case refresh:
		res = coord.Refresh(ctx, scope)
	default:
		res = coord.Load(ctx, scope)
	}

	formatter := GetFormatter()
	message := collection.LoadMessage(res)

	if formatter.Format() == output.FormatJSON {
		if err := formatter.JSON(toLoadOutput(res, message)); err != nil {
			return err
		}
	} else {
		output.NewReportRenderer(formatter).RenderLoad(res, message)
	}

	if res.Freshness == offline.Failed {
		return fmt.Errorf("%s: %s", scope, message)
	}
	return nil
}

func toLoadOutput(res offline.LoadResult, message string) LoadOutput {
	out := LoadOutput{
		Scope:     res.Scope.String(),
		Freshness: string(res.Freshness),
		Message:   message,
		Pending:   res.Pending,
		Items:     res.Items,
	}
	if out.Items == nil {
		out.Items = []offline.Entity{}
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	if !res.SavedAt.IsZero() {
		saved := res.SavedAt
		out.SavedAt = &saved
	}
	return out
}

// parseScope validates the entity type and builds a scope key.
func parseScope(entityType, groupID string) (offline.ScopeKey, error) {
	if !group.IsEntityType(entityType) {
		return offline.ScopeKey{}, fmt.Errorf("unknown entity type %q: must be one of %v", entityType, group.EntityTypes)
	}
	return offline.NewScopeKey(entityType, groupID)
}
