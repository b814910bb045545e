package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// DrainOutput is the JSON form of a reconciliation.
type DrainOutput struct {
	Skipped   bool     `json:"skipped"`
	Applied   int      `json:"applied"`
	Dropped   int      `json:"dropped"`
	Remaining int      `json:"remaining"`
	Refreshed int      `json:"refreshed"`
	Halted    []string `json:"halted"`
	Duration  string   `json:"duration"`
	Error     string   `json:"error,omitempty"`
}

// NewDrainCmd creates the drain command.
func NewDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Send queued writes now",
		Long: `Probe connectivity and, when online, replay every queued write.

Writes are replayed per scope in the order they were made. A scope stops at
the first write that cannot be applied; other scopes are unaffected. Scopes
that empty their queue are refreshed from the remote store.`,
		Aliases: []string{"sync"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(cmd.Context())
		},
	}
}

func runDrain(ctx context.Context) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := GetFormatter()

	var spinner *output.Spinner
	if output.IsColorSupported() {
		spinner = formatter.StartSpinner("Syncing...")
	}
	report := container.Coordinator().Foreground(ctx)
	spinner.Stop()

	if formatter.Format() == output.FormatJSON {
		out := DrainOutput{
			Skipped:   report.Skipped,
			Applied:   report.Applied,
			Dropped:   report.Dropped,
			Remaining: report.Remaining,
			Refreshed: report.Refreshed,
			Halted:    []string{},
			Duration:  report.Duration.String(),
		}
		for _, s := range report.Halted() {
			out.Halted = append(out.Halted, s.String())
		}
		if report.Err != nil {
			out.Error = report.Err.Error()
		}
		if err := formatter.JSON(out); err != nil {
			return err
		}
	} else {
		output.NewReportRenderer(formatter).RenderReconcile(report)
	}

	if report.Err != nil {
		return fmt.Errorf("sync incomplete: %w", report.Err)
	}
	return nil
}
