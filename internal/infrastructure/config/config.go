// Package config provides configuration structs and utilities for bandsync.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents the root configuration for bandsync.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Remote        RemoteConfig        `yaml:"remote"`
	Connectivity  ConnectivityConfig  `yaml:"connectivity"`
	Cache         CacheConfig         `yaml:"cache"`
	Outbox        OutboxConfig        `yaml:"outbox"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds configuration for local durable state.
type StorageConfig struct {
	Path      string `yaml:"path" env:"BANDSYNC_DB_PATH"`            // SQLite database file
	Ephemeral bool   `yaml:"ephemeral" env:"BANDSYNC_EPHEMERAL"`     // Keep state in memory only
}

// RemoteConfig holds configuration for the remote document store.
type RemoteConfig struct {
	URL          string        `yaml:"url" env:"BANDSYNC_REMOTE_URL"`
	Token        string        `yaml:"token,omitempty" env:"BANDSYNC_REMOTE_TOKEN"`
	Timeout      time.Duration `yaml:"timeout" env:"BANDSYNC_REMOTE_TIMEOUT"`             // Bound on every remote call
	PollInterval time.Duration `yaml:"poll_interval" env:"BANDSYNC_REMOTE_POLL_INTERVAL"` // Subscription polling period
}

// ConnectivityConfig holds configuration for the connectivity monitor.
type ConnectivityConfig struct {
	Source   string        `yaml:"source" env:"BANDSYNC_CONNECTIVITY_SOURCE"` // http, file, static
	ProbeURL string        `yaml:"probe_url" env:"BANDSYNC_PROBE_URL"`        // Reachability URL for the http source
	FlagFile string        `yaml:"flag_file" env:"BANDSYNC_FLAG_FILE"`        // Watched file for the file source
	Static   string        `yaml:"static" env:"BANDSYNC_STATIC_STATE"`        // online or offline for the static source
	Interval time.Duration `yaml:"interval" env:"BANDSYNC_PROBE_INTERVAL"`    // Polling period
	Timeout  time.Duration `yaml:"timeout"`                                   // Per-probe timeout
}

// CacheConfig holds configuration for the snapshot cache.
type CacheConfig struct {
	Horizon     time.Duration `yaml:"horizon" env:"BANDSYNC_CACHE_HORIZON"` // Snapshots older than this are purged
	SweepPeriod time.Duration `yaml:"sweep_period"`                         // How often to run the sweep
}

// OutboxConfig holds configuration for outbox draining.
type OutboxConfig struct {
	DrainConcurrency int  `yaml:"drain_concurrency"` // Scopes drained in parallel
	DropNotFound     bool `yaml:"drop_not_found"`    // Drop replayed edits to entities the remote no longer has
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BANDSYNC_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"BANDSYNC_LOG_FORMAT"` // json, text
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" env:"BANDSYNC_TRACING_ENABLED"`
	ExporterType string  `yaml:"exporter_type" env:"BANDSYNC_TRACING_EXPORTER"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"BANDSYNC_OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"` // Service name for traces
}

// Connectivity sources.
const (
	SourceHTTP   = "http"
	SourceFile   = "file"
	SourceStatic = "static"
)

// Default configuration values.
const (
	DefaultStoragePath = "~/.bandsync/bandsync.db"
	DefaultRemoteURL   = "http://localhost:8787"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"

	DefaultRemoteTimeout      = 10 * time.Second
	DefaultRemotePollInterval = 15 * time.Second

	DefaultConnectivitySource   = SourceHTTP
	DefaultConnectivityInterval = 5 * time.Second
	DefaultConnectivityTimeout  = 3 * time.Second

	DefaultCacheHorizon     = 30 * 24 * time.Hour // 30 days
	DefaultCacheSweepPeriod = 1 * time.Hour

	DefaultDrainConcurrency = 4

	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "bandsync"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid connectivity sources.
var validSources = map[string]bool{
	SourceHTTP:   true,
	SourceFile:   true,
	SourceStatic: true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: DefaultStoragePath,
		},
		Remote: RemoteConfig{
			URL:          DefaultRemoteURL,
			Timeout:      DefaultRemoteTimeout,
			PollInterval: DefaultRemotePollInterval,
		},
		Connectivity: ConnectivityConfig{
			Source:   DefaultConnectivitySource,
			Interval: DefaultConnectivityInterval,
			Timeout:  DefaultConnectivityTimeout,
		},
		Cache: CacheConfig{
			Horizon:     DefaultCacheHorizon,
			SweepPeriod: DefaultCacheSweepPeriod,
		},
		Outbox: OutboxConfig{
			DrainConcurrency: DefaultDrainConcurrency,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}

	if err := c.Connectivity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("connectivity: %w", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if err := c.Outbox.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("outbox: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the StorageConfig is valid.
func (s *StorageConfig) Validate() error {
	if !s.Ephemeral && s.Path == "" {
		return errors.New("path is required unless ephemeral")
	}
	return nil
}

// Validate checks if the RemoteConfig is valid.
func (r *RemoteConfig) Validate() error {
	var errs []error

	if r.URL == "" {
		errs = append(errs, errors.New("url is required"))
	} else if err := validateHTTPURL(r.URL); err != nil {
		errs = append(errs, fmt.Errorf("url: %w", err))
	}

	if r.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if r.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ConnectivityConfig is valid.
func (c *ConnectivityConfig) Validate() error {
	var errs []error

	if !validSources[c.Source] {
		errs = append(errs, fmt.Errorf("invalid source %q: must be one of http, file, static", c.Source))
	}

	switch c.Source {
	case SourceHTTP:
		if c.ProbeURL != "" {
			if err := validateHTTPURL(c.ProbeURL); err != nil {
				errs = append(errs, fmt.Errorf("probe_url: %w", err))
			}
		}
	case SourceFile:
		if c.FlagFile == "" {
			errs = append(errs, errors.New("flag_file is required for the file source"))
		}
	case SourceStatic:
		if c.Static != "online" && c.Static != "offline" {
			errs = append(errs, fmt.Errorf("invalid static state %q: must be online or offline", c.Static))
		}
	}

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}

	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the CacheConfig is valid.
func (c *CacheConfig) Validate() error {
	var errs []error

	if c.Horizon <= 0 {
		errs = append(errs, errors.New("horizon must be positive"))
	}
	if c.SweepPeriod < 0 {
		errs = append(errs, errors.New("sweep_period must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the OutboxConfig is valid.
func (o *OutboxConfig) Validate() error {
	if o.DrainConcurrency <= 0 {
		return errors.New("drain_concurrency must be positive")
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	if err := o.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
