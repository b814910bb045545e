package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/application/collection"
	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// MutateOutput is the JSON form of a write result.
type MutateOutput struct {
	MutationID string `json:"mutation_id,omitempty"`
	Accepted   bool   `json:"accepted"`
	Queued     bool   `json:"queued"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
}

// mutateFlags holds the flags for the mutate command.
type mutateFlags struct {
	Data string
	File string
}

// NewMutateCmd creates the mutate command.
func NewMutateCmd() *cobra.Command {
	var flags mutateFlags

	cmd := &cobra.Command{
		Use:   "mutate <entity-type> <group-id> <create|update|delete> [entity-id]",
		Short: "Create, update or delete an item",
		Long: `Write one item of a group's collection.

When online the write is sent to the remote store immediately. When offline,
or when the remote store cannot be reached, it is queued and replayed in
order once connectivity returns. Finance records cannot be edited or deleted
while offline.

Create and update take the item as JSON via --data or --file; its "id" field
names the entity. Delete takes the entity id as the last argument.`,
		Example: `  # Add an event
  bandsync mutate events band-42 create --data '{"id":"e1","title":"Soundcheck"}'

  # Update a setlist from a file
  bandsync mutate setlists band-42 update --file setlist.json

  # Delete a chat message
  bandsync mutate chat band-42 delete c1`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := offline.ParseOperationKind(args[2])
			if err != nil {
				return err
			}

			var id string
			var data []byte
			if kind == offline.OpDelete {
				if len(args) != 4 {
					return fmt.Errorf("delete requires an entity id")
				}
				id = args[3]
			} else {
				data, err = readPayload(flags)
				if err != nil {
					return err
				}
			}

			return runMutate(cmd.Context(), args[0], args[1], kind, id, data)
		},
	}

	cmd.Flags().StringVarP(&flags.Data, "data", "d", "", "item as inline JSON")
	cmd.Flags().StringVarP(&flags.File, "file", "f", "", "read the item JSON from a file")

	return cmd
}

func readPayload(flags mutateFlags) ([]byte, error) {
	switch {
	case flags.Data != "" && flags.File != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case flags.Data != "":
		return []byte(flags.Data), nil
	case flags.File != "":
		data, err := os.ReadFile(flags.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", flags.File, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("create and update require --data or --file")
	}
}

func runMutate(ctx context.Context, entityType, groupID string, kind offline.OperationKind, id string, data []byte) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := dispatchWrite(ctx, container.Services(), entityType, groupID, kind, id, data)
	if err != nil {
		return err
	}

	formatter := GetFormatter()
	message := collection.SaveMessage(res)

	if formatter.Format() == output.FormatJSON {
		out := MutateOutput{
			MutationID: res.MutationID,
			Accepted:   res.Accepted,
			Queued:     res.Queued,
			Message:    message,
		}
		if res.Reason != nil {
			out.Reason = res.Reason.Error()
		}
		if err := formatter.JSON(out); err != nil {
			return err
		}
	} else {
		switch {
		case !res.Accepted:
			// reported through the returned error
		case res.Queued:
			formatter.Warning("%s (%s)", message, res.MutationID)
		default:
			formatter.Success("%s (%s)", message, res.MutationID)
		}
	}

	if !res.Accepted {
		return fmt.Errorf("%s: %v", message, res.Reason)
	}
	return nil
}

// dispatchWrite routes a write through the typed collection of entityType so
// the item is decoded, validated and checked against the offline edit policy.
func dispatchWrite(ctx context.Context, svc *collection.Services, entityType, groupID string, kind offline.OperationKind, id string, data []byte) (offline.MutateResult, error) {
	switch entityType {
	case group.EntityEvents:
		return writeTyped(ctx, svc.Events, groupID, kind, id, data)
	case group.EntitySetlists:
		return writeTyped(ctx, svc.Setlists, groupID, kind, id, data)
	case group.EntityFinance:
		return writeTyped(ctx, svc.Finance, groupID, kind, id, data)
	case group.EntityChat:
		return writeTyped(ctx, svc.Chat, groupID, kind, id, data)
	default:
		return offline.MutateResult{}, fmt.Errorf("unknown entity type %q: must be one of %v", entityType, group.EntityTypes)
	}
}

func writeTyped[T any](ctx context.Context, c *collection.Collection[T], groupID string, kind offline.OperationKind, id string, data []byte) (offline.MutateResult, error) {
	if kind == offline.OpDelete {
		return c.Delete(ctx, groupID, id)
	}

	var item T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return offline.MutateResult{}, fmt.Errorf("invalid %s item: %w", c.EntityType(), err)
	}

	if kind == offline.OpCreate {
		return c.Create(ctx, groupID, item)
	}
	return c.Update(ctx, groupID, item)
}
