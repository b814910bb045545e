package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/coordinator"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// WatchOutput prints a live, timestamped log of sync activity.
type WatchOutput struct {
	mu        sync.Mutex
	writer    io.Writer
	colored   bool
	startTime time.Time
	now       func() time.Time

	transitions int
	pushes      int
	drains      int
}

// WatchOutputOption is a functional option for configuring WatchOutput.
type WatchOutputOption func(*WatchOutput)

// NewWatchOutput creates a new WatchOutput with the given options.
func NewWatchOutput(opts ...WatchOutputOption) *WatchOutput {
	wo := &WatchOutput{
		writer:  os.Stdout,
		colored: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(wo)
	}
	wo.startTime = wo.now()
	return wo
}

// WithWatchWriter sets the output writer.
func WithWatchWriter(w io.Writer) WatchOutputOption {
	return func(wo *WatchOutput) {
		wo.writer = w
	}
}

// WithWatchColor enables or disables colored output.
func WithWatchColor(enabled bool) WatchOutputOption {
	return func(wo *WatchOutput) {
		wo.colored = enabled
	}
}

// Start prints the watch header.
func (wo *WatchOutput) Start(scopes []offline.ScopeKey, state offline.ConnectivityState) {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	title := fmt.Sprintf("Watching %d scope(s)", len(scopes))
	wo.printf(ColorBold, "%s\n", title)
	for _, s := range scopes {
		fmt.Fprintf(wo.writer, "  • %s\n", s)
	}
	wo.line(ConnectivityColor(state), "connectivity %s", state)
}

// Transition records a connectivity edge.
func (wo *WatchOutput) Transition(state offline.ConnectivityState) {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	wo.transitions++
	wo.line(ConnectivityColor(state), "connectivity %s", state)
}

// Loaded records a load or push-driven view update.
func (wo *WatchOutput) Loaded(res offline.LoadResult, message string) {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	wo.line(FreshnessColor(res.Freshness), "%s %d item(s): %s", res.Scope, len(res.Items), message)
}

// Pushed records a remote change notification.
func (wo *WatchOutput) Pushed(scope offline.ScopeKey, items int) {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	wo.pushes++
	wo.line(ColorCyan, "%s pushed %d item(s)", scope, items)
}

// Reconciled records a reconciliation pass.
func (wo *WatchOutput) Reconciled(report coordinator.ReconcileReport) {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	if report.Skipped {
		return
	}
	wo.drains++
	color := ColorGreen
	if report.Err != nil || len(report.Halted()) > 0 {
		color = ColorRed
	}
	wo.line(color, "reconciled: %d applied, %d remaining (%s)",
		report.Applied, report.Remaining, FormatDuration(report.Duration))
}

// Failed records an error.
func (wo *WatchOutput) Failed(err error) {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	wo.line(ColorRed, "✗ %v", err)
}

// Stop prints a summary of the session.
func (wo *WatchOutput) Stop() {
	wo.mu.Lock()
	defer wo.mu.Unlock()

	fmt.Fprintf(wo.writer, "%s\n", "────────────────────────────────────────")
	wo.printf(ColorDim, "%d transition(s), %d push(es), %d reconciliation(s) in %s\n",
		wo.transitions, wo.pushes, wo.drains, FormatDuration(wo.now().Sub(wo.startTime)))
}

// Counts returns the number of transitions, pushes and reconciliations seen.
func (wo *WatchOutput) Counts() (transitions, pushes, drains int) {
	wo.mu.Lock()
	defer wo.mu.Unlock()
	return wo.transitions, wo.pushes, wo.drains
}

func (wo *WatchOutput) line(color Color, format string, args ...any) {
	stamp := wo.now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	if wo.colored {
		fmt.Fprintf(wo.writer, "%s%s%s %s%s%s\n", ColorDim, stamp, ColorReset, color, msg, ColorReset)
		return
	}
	fmt.Fprintf(wo.writer, "%s %s\n", stamp, msg)
}

func (wo *WatchOutput) printf(color Color, format string, args ...any) {
	if wo.colored {
		fmt.Fprintf(wo.writer, "%s%s%s", color, fmt.Sprintf(format, args...), ColorReset)
		return
	}
	fmt.Fprintf(wo.writer, format, args...)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	if d < 48*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.0fd", d.Hours()/24)
}
