package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/application"
	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// RemoteStatus represents the reachability of the remote store.
type RemoteStatus struct {
	URL     string `json:"url,omitempty"`
	Checked bool   `json:"checked"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ScopeStatus represents the outbox state of a single scope.
type ScopeStatus struct {
	Scope   string `json:"scope"`
	Session string `json:"session"`
	Pending int    `json:"pending"`
	Blocked int    `json:"blocked"`
}

// SystemStatus represents the overall sync engine status.
type SystemStatus struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Connectivity string            `json:"connectivity"`
	Remote       RemoteStatus      `json:"remote"`
	StoragePath  string            `json:"storage_path,omitempty"`
	Ephemeral    bool              `json:"ephemeral"`
	Scopes       []ScopeStatus     `json:"scopes"`
	PendingTotal int               `json:"pending_total"`
	BlockedTotal int               `json:"blocked_total"`
	Cache        *ports.CacheStats `json:"cache,omitempty"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var checkHealth bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync engine status",
		Long: `Display the state of the sync engine.

This includes:
  • Connectivity as seen by the monitor
  • Remote store reachability (with --check)
  • Writes waiting to sync per scope, and how many are blocked
  • Snapshot cache statistics`,
		Example: `  # Show status
  bandsync status

  # Also check the remote store's health endpoint
  bandsync status --check

  # Get status as JSON for scripting
  bandsync status -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), container, checkHealth)
		},
	}

	cmd.Flags().BoolVar(&checkHealth, "check", false, "perform a live health check on the remote store")

	return cmd
}

func runStatus(ctx context.Context, container *application.Container, checkHealth bool) error {
	formatter := GetFormatter()

	status, err := getSystemStatus(ctx, container, checkHealth)
	if err != nil {
		return err
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(status)
	}
	return printStatusText(formatter, status)
}

// getSystemStatus collects the engine's state from the container.
func getSystemStatus(ctx context.Context, container *application.Container, checkHealth bool) (SystemStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := container.Config()
	coord := container.Coordinator()

	status := SystemStatus{
		Version:      Version,
		Connectivity: coord.CurrentConnectivity().String(),
		Remote:       RemoteStatus{URL: cfg.Remote.URL},
		Ephemeral:    cfg.Storage.Ephemeral,
		Scopes:       []ScopeStatus{},
	}
	if !cfg.Storage.Ephemeral {
		status.StoragePath = cfg.Storage.Path
	}

	if checkHealth {
		status.Remote = checkRemote(ctx, container)
	}

	byScope := make(map[offline.ScopeKey]*ScopeStatus)
	for _, entityType := range group.EntityTypes {
		pending, err := container.Outbox().PeekAll(ctx, entityType)
		if err != nil {
			return status, fmt.Errorf("list pending %s: %w", entityType, err)
		}
		for _, m := range pending {
			s, ok := byScope[m.Scope]
			if !ok {
				s = &ScopeStatus{Scope: m.Scope.String(), Session: string(coord.Session(m.Scope))}
				byScope[m.Scope] = s
			}
			s.Pending++
			status.PendingTotal++
			if m.IsBlocked() {
				s.Blocked++
				status.BlockedTotal++
			}
		}
	}
	for _, s := range byScope {
		status.Scopes = append(status.Scopes, *s)
	}
	sort.Slice(status.Scopes, func(i, j int) bool { return status.Scopes[i].Scope < status.Scopes[j].Scope })

	stats, err := coord.CacheStats(ctx)
	if err == nil {
		status.Cache = stats
	}

	status.Status = determineOverallStatus(status)
	return status, nil
}

func checkRemote(ctx context.Context, container *application.Container) RemoteStatus {
	rs := RemoteStatus{URL: container.Config().Remote.URL, Checked: true}

	client := container.RemoteClient()
	if client == nil {
		rs.Healthy = true
		rs.URL = ""
		return rs
	}

	ctx, cancel := context.WithTimeout(ctx, container.Config().Remote.Timeout)
	defer cancel()

	start := time.Now()
	if err := client.HealthCheck(ctx); err != nil {
		rs.Error = err.Error()
		return rs
	}
	rs.Healthy = true
	rs.Latency = output.FormatDuration(time.Since(start))
	return rs
}

// determineOverallStatus summarizes the engine: offline, degraded when writes
// are blocked or the remote failed its health check, otherwise online.
func determineOverallStatus(s SystemStatus) string {
	switch {
	case s.Connectivity != offline.Online.String():
		return "offline"
	case s.BlockedTotal > 0, s.Remote.Checked && !s.Remote.Healthy:
		return "degraded"
	default:
		return "online"
	}
}

// printStatusText prints the status in human-readable format.
func printStatusText(formatter *output.Formatter, status SystemStatus) error {
	formatter.Header("Bandsync Status")
	formatter.Println("")

	formatter.Println("  %s  %s", formatter.Dim("Engine:"), getStatusIndicator(formatter, status.Status))
	network := offline.Offline
	if status.Connectivity == offline.Online.String() {
		network = offline.Online
	}
	formatter.Println("  %s  %s", formatter.Dim("Network:"), formatter.Connectivity(network))
	formatter.Println("  %s  %s", formatter.Dim("Version:"), status.Version)
	formatter.Println("")

	formatter.SubHeader("Remote")
	formatter.Println("  %s  %s", formatter.Dim("URL:"), status.Remote.URL)
	if status.Remote.Checked {
		if status.Remote.Healthy {
			formatter.Success("Reachable (%s)", status.Remote.Latency)
		} else {
			formatter.Error("Unreachable: %s", status.Remote.Error)
		}
	}
	formatter.Println("")

	formatter.SubHeader("Storage")
	if status.Ephemeral {
		formatter.Warning("Ephemeral: cache and outbox are lost on exit")
	} else {
		formatter.Println("  %s  %s", formatter.Dim("Database:"), status.StoragePath)
	}
	if status.Cache != nil {
		formatter.Println("  %s  %d scope(s), %s", formatter.Dim("Cache:"),
			status.Cache.TotalEntries, output.FormatBytes(status.Cache.TotalSize))
	}
	formatter.Println("")

	formatter.SubHeader("Outbox")
	if len(status.Scopes) == 0 {
		formatter.Success("Nothing waiting to sync")
		return nil
	}
	for _, s := range status.Scopes {
		formatter.Println("  %s  %s", s.Scope, formatter.Queue(s.Pending, s.Blocked))
	}
	formatter.Println("")
	formatter.Println("%s %d waiting, %d blocked",
		formatter.Dim("Summary:"), status.PendingTotal, status.BlockedTotal)

	return nil
}

// getStatusIndicator returns a colored status indicator.
func getStatusIndicator(formatter *output.Formatter, status string) string {
	var color output.Color
	switch status {
	case "online":
		color = output.ColorGreen
	case "degraded", "offline":
		color = output.ColorYellow
	default:
		color = output.ColorDim
	}
	return formatter.Badge(status, color)
}
