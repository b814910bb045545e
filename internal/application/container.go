// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jbctechsolutions/bandsync/internal/adapters/cache"
	"github.com/jbctechsolutions/bandsync/internal/adapters/connectivity"
	outboxstore "github.com/jbctechsolutions/bandsync/internal/adapters/outbox"
	"github.com/jbctechsolutions/bandsync/internal/adapters/remote"
	"github.com/jbctechsolutions/bandsync/internal/adapters/sqlite"
	"github.com/jbctechsolutions/bandsync/internal/application/collection"
	"github.com/jbctechsolutions/bandsync/internal/application/coordinator"
	"github.com/jbctechsolutions/bandsync/internal/application/outbox"
	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to debug when true

	// Database connection, nil when ephemeral
	dbConn *sqlite.Connection
	db     *sql.DB

	// Local state
	snapshotCache ports.SnapshotCachePort
	outboxStore   ports.OutboxStorePort

	// Remote and connectivity
	remote       ports.RemoteStorePort
	remoteClient *remote.Client
	monitor      *connectivity.Monitor
	source       connectivity.Source

	// Application services
	outbox      *outbox.Service
	coordinator *coordinator.Coordinator
	services    *collection.Services

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer
}

// Option customizes container construction.
type Option func(*Container)

// WithRemoteStore replaces the HTTP client with store.
func WithRemoteStore(store ports.RemoteStorePort) Option {
	return func(c *Container) {
		c.remote = store
	}
}

// WithConnectivitySource replaces the configured connectivity source.
func WithConnectivitySource(source connectivity.Source) Option {
	return func(c *Container) {
		c.source = source
	}
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration. The coordinator is not
// started; call Start to begin observing connectivity.
func NewContainer(cfg *config.Config, verbose bool, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initStorage(); err != nil {
		_ = c.Close() // Clean up on error
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	c.initRemote()

	if err := c.initConnectivity(); err != nil {
		_ = c.Close() // Clean up on error
		return nil, fmt.Errorf("failed to initialize connectivity: %w", err)
	}

	c.initServices()

	return c, nil
}

// initObservability initializes logging and tracing.
func (c *Container) initObservability() error {
	if c.logger == nil {
		logLevel := logging.LevelInfo
		if c.verbose {
			logLevel = logging.LevelDebug
		} else {
			switch c.config.Logging.Level {
			case "debug":
				logLevel = logging.LevelDebug
			case "warn":
				logLevel = logging.LevelWarn
			case "error":
				logLevel = logging.LevelError
			}
		}

		logFormat := logging.FormatText
		if c.config.Logging.Format == "json" {
			logFormat = logging.FormatJSON
		}

		c.logger = logging.New(logging.Config{
			Level:  logLevel,
			Format: logFormat,
		})
	}

	tc := c.config.Observability.Tracing
	if !tc.Enabled {
		c.tracer = tracing.Default()
		return nil
	}

	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterType(tc.ExporterType),
		OTLPEndpoint: tc.OTLPEndpoint,
		ServiceName:  tc.ServiceName,
		Environment:  "production",
		SampleRate:   tc.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	c.tracer = tracer
	return nil
}

// initStorage opens the snapshot cache and outbox. Ephemeral mode keeps both
// in memory; otherwise the outbox lives in SQLite and the cache layers an
// in-memory tier over SQLite.
func (c *Container) initStorage() error {
	if c.config.Storage.Ephemeral {
		c.snapshotCache = cache.NewMemorySnapshotCache()
		c.outboxStore = outboxstore.NewMemoryOutboxStore()
		return nil
	}

	path, err := config.ExpandPath(c.config.Storage.Path)
	if err != nil {
		return err
	}

	conn, err := sqlite.NewConnection(path)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db, err := conn.DB()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	c.dbConn = conn
	c.db = db
	c.snapshotCache = cache.NewCompositeSnapshotCache(
		cache.NewMemorySnapshotCache(),
		cache.NewSQLiteSnapshotCache(db, c.logger),
	)
	c.outboxStore = outboxstore.NewSQLiteOutboxStore(db)
	return nil
}

// initRemote builds the HTTP client unless a remote store was injected.
func (c *Container) initRemote() {
	if c.remote != nil {
		return
	}
	rc := c.config.Remote
	c.remoteClient = remote.NewClient(rc.URL,
		remote.WithToken(rc.Token),
		remote.WithTimeout(rc.Timeout),
		remote.WithPollInterval(rc.PollInterval),
		remote.WithTracer(c.tracer),
		remote.WithLogger(c.logger),
	)
	c.remote = c.remoteClient
}

// initConnectivity builds the connectivity source and monitor.
func (c *Container) initConnectivity() error {
	cc := c.config.Connectivity

	if c.source == nil {
		switch cc.Source {
		case config.SourceFile:
			path, err := config.ExpandPath(cc.FlagFile)
			if err != nil {
				return err
			}
			c.source = connectivity.NewFileSource(path, 0)
		case config.SourceStatic:
			state, err := connectivity.ParseState(cc.Static)
			if err != nil {
				return err
			}
			c.source = connectivity.NewStaticSource(state)
		default:
			probeURL := cc.ProbeURL
			if probeURL == "" {
				probeURL = strings.TrimSuffix(c.config.Remote.URL, "/") + remote.EndpointHealth
			}
			c.source = connectivity.NewHTTPProbe(probeURL, cc.Timeout)
		}
	}

	c.monitor = connectivity.NewMonitor(c.source, connectivity.MonitorConfig{
		Interval:     cc.Interval,
		ProbeTimeout: cc.Timeout,
		Logger:       c.logger,
	})
	return nil
}

// initServices wires the outbox, the coordinator and the domain collections.
func (c *Container) initServices() {
	onReject := outbox.KeepRejected
	if c.config.Outbox.DropNotFound {
		onReject = outbox.DropNotFound
	}
	c.outbox = outbox.NewService(c.outboxStore, outbox.Config{
		Concurrency: c.config.Outbox.DrainConcurrency,
		OnReject:    onReject,
		Logger:      c.logger,
		Tracer:      c.tracer,
	})

	c.coordinator = coordinator.New(c.remote, c.snapshotCache, c.outbox, c.monitor, coordinator.Config{
		RemoteTimeout: c.config.Remote.Timeout,
		CacheHorizon:  c.config.Cache.Horizon,
		SweepPeriod:   c.config.Cache.SweepPeriod,
		Logger:        c.logger,
		Tracer:        c.tracer,
	})

	c.services = collection.NewServices(c.coordinator, c.logger)
}

// Start starts the coordinator and its connectivity monitor.
func (c *Container) Start(ctx context.Context) error {
	return c.coordinator.Start(ctx)
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	ctx := context.Background()

	if c.coordinator != nil {
		c.coordinator.Stop()
	}

	if c.remoteClient != nil {
		_ = c.remoteClient.Close()
	}

	if c.tracer != nil {
		_ = c.tracer.Shutdown(ctx)
	}

	if c.dbConn != nil {
		return c.dbConn.Close()
	}
	return nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// DB returns the database handle, or nil in ephemeral mode.
func (c *Container) DB() *sql.DB {
	return c.db
}

// Coordinator returns the sync coordinator.
func (c *Container) Coordinator() *coordinator.Coordinator {
	return c.coordinator
}

// Services returns the typed group collections.
func (c *Container) Services() *collection.Services {
	return c.services
}

// Outbox returns the pending-mutation queue.
func (c *Container) Outbox() *outbox.Service {
	return c.outbox
}

// SnapshotCache returns the snapshot cache.
func (c *Container) SnapshotCache() ports.SnapshotCachePort {
	return c.snapshotCache
}

// Remote returns the remote store.
func (c *Container) Remote() ports.RemoteStorePort {
	return c.remote
}

// RemoteClient returns the HTTP remote client, or nil when a remote store
// was injected.
func (c *Container) RemoteClient() *remote.Client {
	return c.remoteClient
}

// Monitor returns the connectivity monitor.
func (c *Container) Monitor() *connectivity.Monitor {
	return c.monitor
}

// Logger returns the structured logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the OpenTelemetry tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}
