// Package logging provides structured logging for bandsync.
// It wraps log/slog with context-aware logging, correlation IDs,
// and sync-specific log attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// ScopeKey is the context key for the scope being synced.
	ScopeKey contextKey = "scope"
	// MutationIDKey is the context key for pending mutation IDs.
	MutationIDKey contextKey = "mutation_id"
	// EntityTypeKey is the context key for entity types.
	EntityTypeKey contextKey = "entity_type"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with context enrichment.
type Logger struct {
	slogger *slog.Logger
	level   slog.Level
	mu      sync.RWMutex
}

// global is the package-level default logger.
var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	if global == nil {
		Init(DefaultConfig())
	}
	return global
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize time format
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel dynamically changes the log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLevel(level)
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slogger: l.slogger.WithGroup(name),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+8)

	// Extract standard context values
	if v := ctx.Value(CorrelationIDKey); v != nil {
		enriched = append(enriched, "correlation_id", v)
	}
	if v := ctx.Value(ScopeKey); v != nil {
		enriched = append(enriched, "scope", v)
	}
	if v := ctx.Value(MutationIDKey); v != nil {
		enriched = append(enriched, "mutation_id", v)
	}
	if v := ctx.Value(EntityTypeKey); v != nil {
		enriched = append(enriched, "entity_type", v)
	}

	enriched = append(enriched, args...)
	return enriched
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.slogger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithScope adds a rendered scope key to the context.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// WithMutationID adds a pending mutation ID to the context.
func WithMutationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, MutationIDKey, id)
}

// WithEntityType adds an entity type to the context.
func WithEntityType(ctx context.Context, entityType string) context.Context {
	return context.WithValue(ctx, EntityTypeKey, entityType)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if v := ctx.Value(CorrelationIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- Sync logging helpers ---

// LogLoad logs the outcome of a load.
func LogLoad(ctx context.Context, logger *Logger, freshness string, items int, duration time.Duration, reason error) {
	args := []any{
		"freshness", freshness,
		"items", items,
		"duration_ms", duration.Milliseconds(),
	}
	if reason != nil {
		args = append(args, "reason", reason.Error())
		logger.WarnContext(ctx, "load served without fresh data", args...)
		return
	}
	logger.DebugContext(ctx, "load completed", args...)
}

// LogMutation logs the outcome of a mutate.
func LogMutation(ctx context.Context, logger *Logger, kind string, queued bool, reason error) {
	args := []any{
		"kind", kind,
		"queued", queued,
	}
	if reason != nil {
		args = append(args, "reason", reason.Error())
	}
	logger.InfoContext(ctx, "mutation handled", args...)
}

// LogDrain logs the result of draining one scope.
func LogDrain(ctx context.Context, logger *Logger, applied, remaining int, halted bool, duration time.Duration) {
	logger.InfoContext(ctx, "outbox drained",
		"applied", applied,
		"remaining", remaining,
		"halted", halted,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogReplayFailure logs a failed replay of a queued mutation.
func LogReplayFailure(ctx context.Context, logger *Logger, retryCount int, err error) {
	logger.WarnContext(ctx, "mutation replay failed",
		"retry_count", retryCount,
		"error", err.Error(),
	)
}

// LogTransition logs a connectivity edge.
func LogTransition(ctx context.Context, logger *Logger, from, to string) {
	logger.InfoContext(ctx, "connectivity changed",
		"from", from,
		"to", to,
	)
}

// LogCacheHit logs a snapshot cache hit.
func LogCacheHit(ctx context.Context, logger *Logger, key string, items int) {
	logger.DebugContext(ctx, "cache hit",
		"cache_key", key,
		"items", items,
	)
}

// LogCacheMiss logs a snapshot cache miss.
func LogCacheMiss(ctx context.Context, logger *Logger, key string) {
	logger.DebugContext(ctx, "cache miss",
		"cache_key", key,
	)
}

// LogPersistFailure logs a local storage write that failed but did not fail the caller.
func LogPersistFailure(ctx context.Context, logger *Logger, what string, err error) {
	logger.WarnContext(ctx, "local persistence failed",
		"what", what,
		"error", err.Error(),
	)
}
