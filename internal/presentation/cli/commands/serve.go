package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jbctechsolutions/bandsync/internal/adapters/remote"
	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

const serveShutdownTimeout = 5 * time.Second

// seedItem is one entity in a seed file.
type seedItem struct {
	ID   string         `yaml:"id"`
	Data map[string]any `yaml:"data"`
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var addr, token, seedFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory remote store for development",
		Long: `Serve an in-memory remote store over HTTP, speaking the same API the
engine syncs against. Data lives only as long as the process.

A seed file maps scopes to their initial items:

  setlists:band-42:
    - id: s1
      data: {title: "Friday set", songs: ["Intro", "Encore"]}`,
		Example: `  # Serve on the default address
  bandsync serve

  # Require a token and preload data
  bandsync serve --addr 127.0.0.1:9000 --token dev --seed seed.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := remote.NewMemoryStore()
			if seedFile != "" {
				n, err := loadSeed(store, seedFile)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d scope(s) from %s\n", n, seedFile)
			}

			logger := logging.New(logging.Config{
				Level:  logging.LevelInfo,
				Format: logging.FormatText,
				Output: cmd.ErrOrStderr(),
			})
			opts := []remote.HandlerOption{remote.WithHandlerLogger(logger)}
			if token != "" {
				opts = append(opts, remote.WithRequiredToken(token))
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Remote store listening on http://%s\n", ln.Addr())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return serveStore(ctx, ln, remote.NewHandler(store, opts...))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&token, "token", "", "bearer token clients must send")
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML file of initial items per scope")

	return cmd
}

// serveStore serves handler on ln until ctx is done, then shuts down gracefully.
func serveStore(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// loadSeed reads a seed file into store and returns the number of scopes seeded.
func loadSeed(store *remote.MemoryStore, path string) (int, error) {
	path, err := config.ExpandPath(path)
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seed map[string][]seedItem
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	for key, items := range seed {
		scope, err := offline.ParseScopeKey(key)
		if err != nil {
			return 0, fmt.Errorf("seed scope %q: %w", key, err)
		}
		if !group.IsEntityType(scope.EntityType) {
			return 0, fmt.Errorf("seed scope %q: unknown entity type", key)
		}

		entities := make([]offline.Entity, 0, len(items))
		for i, item := range items {
			if item.ID == "" {
				return 0, fmt.Errorf("seed scope %q: item %d has no id", key, i)
			}
			data := item.Data
			if data == nil {
				data = map[string]any{}
			}
			if _, ok := data["id"]; !ok {
				data["id"] = item.ID
			}
			encoded, err := json.Marshal(data)
			if err != nil {
				return 0, fmt.Errorf("seed scope %q: item %s: %w", key, item.ID, err)
			}
			entities = append(entities, offline.Entity{ID: item.ID, Data: encoded})
		}
		store.Put(scope, entities)
	}
	return len(seed), nil
}
