package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/coordinator"
	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// ReportRenderer renders sync engine results in text form.
type ReportRenderer struct {
	formatter *Formatter
}

// NewReportRenderer creates a renderer that writes through formatter.
func NewReportRenderer(formatter *Formatter) *ReportRenderer {
	return &ReportRenderer{formatter: formatter}
}

// RenderLoad renders a load result. message is the domain-level status line.
func (r *ReportRenderer) RenderLoad(res offline.LoadResult, message string) {
	f := r.formatter
	_ = f.Header(res.Scope.String())
	_ = f.Item("Status", f.Freshness(res.Freshness))
	_ = f.Item("Message", message)
	if !res.SavedAt.IsZero() {
		_ = f.Item("Saved", fmt.Sprintf("%s ago", FormatDuration(time.Since(res.SavedAt))))
	}
	if res.Reason != nil {
		_ = f.Item("Reason", res.Reason.Error())
	}
	_ = f.Println("")

	if len(res.Items) == 0 {
		_ = f.Println("%s", f.Dim("  (no items)"))
		return
	}

	rows := make([][]string, 0, len(res.Items))
	for _, e := range res.Items {
		rows = append(rows, []string{e.ID, truncate(string(e.Data), 60)})
	}
	_ = f.Table(TableData{
		Columns: []TableColumn{{Header: "ID"}, {Header: "DATA"}},
		Rows:    rows,
	})
}

// RenderPending renders queued mutations as a table.
func (r *ReportRenderer) RenderPending(pending []offline.PendingMutation) {
	f := r.formatter
	if len(pending) == 0 {
		_ = f.Success("Nothing waiting to sync")
		return
	}

	rows := make([][]string, 0, len(pending))
	for _, m := range pending {
		status := string(m.Status)
		if m.IsBlocked() {
			status = f.Colorize(status, ColorRed)
		}
		rows = append(rows, []string{
			m.ID,
			m.Scope.String(),
			string(m.Kind),
			m.EntityID,
			status,
			fmt.Sprintf("%d", m.RetryCount),
			truncate(m.LastError, 40),
		})
	}
	_ = f.Table(TableData{
		Columns: []TableColumn{
			{Header: "ID"},
			{Header: "SCOPE"},
			{Header: "KIND"},
			{Header: "ENTITY"},
			{Header: "STATUS"},
			{Header: "RETRIES", AlignRight: true},
			{Header: "LAST ERROR"},
		},
		Rows: rows,
	})
}

// RenderReconcile renders the outcome of a reconciliation pass.
func (r *ReportRenderer) RenderReconcile(report coordinator.ReconcileReport) {
	f := r.formatter
	if report.Skipped {
		_ = f.Warning("Offline, nothing was sent")
		return
	}
	if len(report.Scopes) == 0 && report.Err == nil {
		_ = f.Success("Nothing waiting to sync")
		return
	}

	rows := make([][]string, 0, len(report.Scopes))
	for _, s := range report.Scopes {
		state := f.Colorize("drained", ColorGreen)
		if s.Halted {
			state = f.Colorize("halted", ColorRed)
		}
		rows = append(rows, []string{
			s.Scope.String(),
			fmt.Sprintf("%d", s.Applied),
			fmt.Sprintf("%d", s.Dropped),
			fmt.Sprintf("%d", s.Remaining),
			state,
		})
	}
	_ = f.Table(TableData{
		Columns: []TableColumn{
			{Header: "SCOPE"},
			{Header: "APPLIED", AlignRight: true},
			{Header: "DROPPED", AlignRight: true},
			{Header: "REMAINING", AlignRight: true},
			{Header: "STATE"},
		},
		Rows: rows,
	})
	_ = f.Println("")

	summary := fmt.Sprintf("%d applied, %d dropped, %d remaining, %d refreshed in %s",
		report.Applied, report.Dropped, report.Remaining, report.Refreshed, FormatDuration(report.Duration))
	if report.Err != nil {
		_ = f.Error("%s: %v", summary, report.Err)
		return
	}
	_ = f.Success("%s", summary)
}

// RenderCacheStats renders snapshot cache statistics.
func (r *ReportRenderer) RenderCacheStats(stats *ports.CacheStats) {
	f := r.formatter
	_ = f.Header("Snapshot Cache")
	_ = f.Item("Scopes", fmt.Sprintf("%d", stats.TotalEntries))
	_ = f.Item("Items", fmt.Sprintf("%d", stats.TotalItems))
	_ = f.Item("Size", FormatBytes(stats.TotalSize))
	_ = f.Item("Hits", fmt.Sprintf("%d", stats.HitCount))
	_ = f.Item("Misses", fmt.Sprintf("%d", stats.MissCount))
	_ = f.Item("Hit rate", fmt.Sprintf("%.1f%%", stats.HitRate))
	_ = f.Item("Corrupt", fmt.Sprintf("%d", stats.CorruptCount))
	_ = f.Item("Swept", fmt.Sprintf("%d", stats.SweptCount))
	if !stats.OldestEntry.IsZero() {
		_ = f.Item("Oldest", fmt.Sprintf("%s ago", FormatDuration(time.Since(stats.OldestEntry))))
		_ = f.Item("Newest", fmt.Sprintf("%s ago", FormatDuration(time.Since(stats.NewestEntry))))
	}
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
