// Package commands implements the CLI commands for bandsync.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/bandsync/internal/adapters/connectivity"
	"github.com/jbctechsolutions/bandsync/internal/application"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/bandsync/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
	Offline    bool // Force the engine offline regardless of the network
	Ephemeral  bool // Keep cache and outbox in memory only
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config     *config.Config
	Formatter  *output.Formatter
	Flags      *GlobalFlags
	Container  *application.Container
	ctx        context.Context
	cancelFunc context.CancelFunc
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// skipInit lists commands that run without the sync engine.
var skipInit = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"serve":      true,
}

// NewRootCmd creates the root command for the bandsync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bandsync",
		Short: "Bandsync - offline-first sync for band collaboration data",
		Long: `Bandsync keeps a band's events, setlists, finance records and chat
usable without a network connection.

Reads are served from the remote store when reachable and from a local
snapshot cache otherwise. Writes made offline wait in a durable outbox and
are replayed in order as soon as connectivity returns.

Key features:
  • Connectivity-aware reads with fresh, stale or failed results
  • Durable, per-scope ordered outbox with retry and discard
  • Automatic reconciliation on every reconnect
  • Remote change subscriptions that keep the cache current`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}
			return initializeApp(cmd.Context(), cmd.OutOrStdout())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.bandsync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Offline, "offline", false, "treat the remote store as unreachable")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Ephemeral, "ephemeral", false, "keep cache and outbox in memory only")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewStatusCmd())

	// Reads and writes
	rootCmd.AddCommand(NewLoadCmd())
	rootCmd.AddCommand(NewMutateCmd())

	// Outbox and cache management
	rootCmd.AddCommand(NewPendingCmd())
	rootCmd.AddCommand(NewDrainCmd())
	rootCmd.AddCommand(NewCacheCmd())

	// Long-running
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewShellCmd())

	return rootCmd
}

// initializeApp builds the container and starts the sync engine. It is a
// no-op when the application is already running, so shell sub-commands
// share one engine.
func initializeApp(parent context.Context, w io.Writer) error {
	appCtxMu.RLock()
	running := appCtx != nil
	appCtxMu.RUnlock()
	if running {
		return nil
	}

	formatter := newFormatter(w)

	cfg, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		if globalFlags.Verbose {
			formatter.Warning("Could not load config: %v, using defaults", err)
		}
		cfg = config.NewDefaultConfig()
	}
	if globalFlags.Ephemeral {
		cfg.Storage.Ephemeral = true
	}

	var opts []application.Option
	if globalFlags.Offline {
		opts = append(opts, application.WithConnectivitySource(connectivity.NewStaticSource(offline.Offline)))
	}

	container, err := application.NewContainer(cfg, globalFlags.Verbose, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	if err := container.Start(ctx); err != nil {
		cancel()
		_ = container.Close()
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	if initErr := container.Monitor().InitErr(); initErr != nil && globalFlags.Verbose {
		formatter.Warning("Connectivity source unavailable, staying offline: %v", initErr)
	}

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:     cfg,
		Formatter:  formatter,
		Flags:      &globalFlags,
		Container:  container,
		ctx:        ctx,
		cancelFunc: cancel,
	}
	appCtxMu.Unlock()

	return nil
}

func newFormatter(w io.Writer) *output.Formatter {
	format := output.FormatText
	if globalFlags.Output == "json" {
		format = output.FormatJSON
	}
	if w == nil {
		w = os.Stdout
	}
	return output.NewFormatter(
		output.WithWriter(w),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.IsColorSupported()),
	)
}

// loadConfig loads configuration from the specified file or default location.
func loadConfig(configPath string) (*config.Config, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	return loader.Load(configPath)
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
// Thread-safe via mutex protection.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
// Thread-safe via mutex protection.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return newFormatter(nil)
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
// Thread-safe via mutex protection.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// requireContainer returns the container or an error when the app is not initialized.
func requireContainer() (*application.Container, error) {
	container := GetContainer()
	if container == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return container, nil
}

// Shutdown stops the sync engine and releases its resources.
func Shutdown() {
	appCtxMu.Lock()
	ctx := appCtx
	appCtx = nil
	appCtxMu.Unlock()

	if ctx == nil {
		return
	}
	if ctx.cancelFunc != nil {
		ctx.cancelFunc()
	}
	if ctx.Container != nil {
		_ = ctx.Container.Close()
	}
}

// Execute runs the root command with graceful shutdown support.
func Execute() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		rootCmd := NewRootCmd()
		errChan <- rootCmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		Shutdown()
		if err != nil {
			GetFormatter().Error("%s", err.Error())
			os.Exit(1)
		}
	case sig := <-sigChan:
		GetFormatter().Warning("Received signal %v, shutting down...", sig)
		cancel()
		Shutdown()
		os.Exit(130) // Standard exit code for SIGINT
	}
}
