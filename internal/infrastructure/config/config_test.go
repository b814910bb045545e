package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg == nil {
		t.Fatal("NewDefaultConfig returned nil")
	}

	// Check storage defaults
	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("expected storage path %q, got %q", DefaultStoragePath, cfg.Storage.Path)
	}
	if cfg.Storage.Ephemeral {
		t.Error("expected storage to be durable by default")
	}

	// Check remote defaults
	if cfg.Remote.URL != DefaultRemoteURL {
		t.Errorf("expected remote URL %q, got %q", DefaultRemoteURL, cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != DefaultRemoteTimeout {
		t.Errorf("expected remote timeout %v, got %v", DefaultRemoteTimeout, cfg.Remote.Timeout)
	}

	// Check connectivity defaults
	if cfg.Connectivity.Source != SourceHTTP {
		t.Errorf("expected connectivity source %q, got %q", SourceHTTP, cfg.Connectivity.Source)
	}

	// Check cache defaults
	if cfg.Cache.Horizon != 30*24*time.Hour {
		t.Errorf("expected cache horizon of 30 days, got %v", cfg.Cache.Horizon)
	}

	// Check logging defaults
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("expected log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("expected log format %q, got %q", DefaultLogFormat, cfg.Logging.Format)
	}

	// Check tracing defaults
	if cfg.Observability.Tracing.Enabled {
		t.Error("expected tracing to be disabled by default")
	}
	if cfg.Observability.Tracing.ServiceName != "bandsync" {
		t.Errorf("expected service name bandsync, got %q", cfg.Observability.Tracing.ServiceName)
	}
}

func TestConfig_Validate_DefaultIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{
			name:    "valid debug level",
			config:  LoggingConfig{Level: "debug", Format: "json"},
			wantErr: false,
		},
		{
			name:    "valid error level",
			config:  LoggingConfig{Level: "error", Format: "text"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			config:  LoggingConfig{Level: "invalid", Format: "json"},
			wantErr: true,
		},
		{
			name:    "invalid log format",
			config:  LoggingConfig{Level: "info", Format: "invalid"},
			wantErr: true,
		},
		{
			name:    "empty values are valid",
			config:  LoggingConfig{Level: "", Format: ""},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemoteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RemoteConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  RemoteConfig{URL: "https://sync.example.com", Timeout: time.Second, PollInterval: time.Second},
			wantErr: false,
		},
		{
			name:    "empty url",
			config:  RemoteConfig{URL: "", Timeout: time.Second, PollInterval: time.Second},
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			config:  RemoteConfig{URL: "ftp://sync.example.com", Timeout: time.Second, PollInterval: time.Second},
			wantErr: true,
		},
		{
			name:    "zero timeout",
			config:  RemoteConfig{URL: "http://localhost:8787", PollInterval: time.Second},
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			config:  RemoteConfig{URL: "http://localhost:8787", Timeout: time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectivityConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ConnectivityConfig
		wantErr bool
	}{
		{
			name:    "http source",
			config:  ConnectivityConfig{Source: SourceHTTP, ProbeURL: "http://localhost:8787/healthz", Interval: time.Second},
			wantErr: false,
		},
		{
			name:    "file source with flag file",
			config:  ConnectivityConfig{Source: SourceFile, FlagFile: "/tmp/offline", Interval: time.Second},
			wantErr: false,
		},
		{
			name:    "file source without flag file",
			config:  ConnectivityConfig{Source: SourceFile, Interval: time.Second},
			wantErr: true,
		},
		{
			name:    "static offline",
			config:  ConnectivityConfig{Source: SourceStatic, Static: "offline", Interval: time.Second},
			wantErr: false,
		},
		{
			name:    "static with bad state",
			config:  ConnectivityConfig{Source: SourceStatic, Static: "maybe", Interval: time.Second},
			wantErr: true,
		},
		{
			name:    "unknown source",
			config:  ConnectivityConfig{Source: "carrier-pigeon", Interval: time.Second},
			wantErr: true,
		},
		{
			name:    "zero interval",
			config:  ConnectivityConfig{Source: SourceHTTP},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
	}{
		{
			name:    "disabled ignores fields",
			config:  TracingConfig{Enabled: false, ExporterType: "bogus"},
			wantErr: false,
		},
		{
			name:    "stdout exporter",
			config:  TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 1, ServiceName: "bandsync"},
			wantErr: false,
		},
		{
			name:    "otlp without endpoint",
			config:  TracingConfig{Enabled: true, ExporterType: "otlp", SampleRate: 1, ServiceName: "bandsync"},
			wantErr: true,
		},
		{
			name:    "sample rate out of range",
			config:  TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 2, ServiceName: "bandsync"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Path: ""}, // Invalid: no path and not ephemeral
		Remote: RemoteConfig{
			URL:     "", // Invalid: empty URL
			Timeout: -1 * time.Second,
		},
		Connectivity: ConnectivityConfig{Source: SourceHTTP, Interval: time.Second},
		Cache:        CacheConfig{Horizon: time.Hour},
		Outbox:       OutboxConfig{DrainConcurrency: 1},
		Logging: LoggingConfig{
			Level: "invalid",
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{"storage", "remote", "logging"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestLoader_LoadMissingFileReturnsDefaults(t *testing.T) {
	loader, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	cfg, err := loader.WithoutEnv().Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.URL != DefaultRemoteURL {
		t.Errorf("expected default remote URL, got %q", cfg.Remote.URL)
	}
}

func TestLoader_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	loader, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	loader.WithoutEnv()

	cfg := NewDefaultConfig()
	cfg.Remote.URL = "https://sync.example.com"
	cfg.Cache.Horizon = 48 * time.Hour

	if err := loader.Save(cfg, ""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Remote.URL != "https://sync.example.com" {
		t.Errorf("expected remote URL to round-trip, got %q", loaded.Remote.URL)
	}
	if loaded.Cache.Horizon != 48*time.Hour {
		t.Errorf("expected horizon 48h, got %v", loaded.Cache.Horizon)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("remote:\n  url: http://from-file:8787\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BANDSYNC_REMOTE_URL", "http://from-env:8787")
	t.Setenv("BANDSYNC_REMOTE_TIMEOUT", "2s")
	t.Setenv("BANDSYNC_EPHEMERAL", "true")

	loader, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	cfg, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote.URL != "http://from-env:8787" {
		t.Errorf("expected env to win over file, got %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 2*time.Second {
		t.Errorf("expected timeout 2s, got %v", cfg.Remote.Timeout)
	}
	if !cfg.Storage.Ephemeral {
		t.Error("expected ephemeral storage from env")
	}
	// Unset variables leave file and default values alone.
	if cfg.Remote.PollInterval != DefaultRemotePollInterval {
		t.Errorf("expected default poll interval, got %v", cfg.Remote.PollInterval)
	}
}

func TestLoader_LoadFromFileMissing(t *testing.T) {
	loader, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if _, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := ExpandPath("~/.bandsync/bandsync.db")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if want := filepath.Join(home, ".bandsync", "bandsync.db"); got != want {
		t.Errorf("ExpandPath() = %q, want %q", got, want)
	}

	if got, _ := ExpandPath("/var/lib/bandsync.db"); got != "/var/lib/bandsync.db" {
		t.Errorf("absolute path changed: %q", got)
	}
}
