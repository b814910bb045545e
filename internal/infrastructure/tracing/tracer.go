// Package tracing provides OpenTelemetry-based tracing for the sync engine.
// It supports stdout and OTLP exporters and provides span helpers for loads,
// mutations, outbox drains and remote requests.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation name used for bandsync spans.
	TracerName = "github.com/jbctechsolutions/bandsync"

	// Version is the semantic version of the tracer.
	Version = "0.3.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "bandsync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// global is the package-level default tracer.
var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	// Create exporter
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL conflicts.
	// The default resource's schema URL may conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create tracer provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set global tracer provider
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// --- Sync span helpers ---

// LoadSpan covers a single Load call for one scope.
type LoadSpan struct {
	span trace.Span
}

// StartLoadSpan starts a span for loading a scope.
func (t *Tracer) StartLoadSpan(ctx context.Context, scope string, forced bool) (context.Context, *LoadSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.load",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sync.scope", scope),
			attribute.Bool("sync.load.forced", forced),
		),
	)
	return ctx, &LoadSpan{span: span}
}

// SetResult records the outcome of the load.
func (ls *LoadSpan) SetResult(freshness string, items, pending int) {
	ls.span.SetAttributes(
		attribute.String("sync.load.freshness", freshness),
		attribute.Int("sync.load.items", items),
		attribute.Int("sync.load.pending", pending),
	)
}

// SetCacheHit marks whether the result came from the snapshot cache.
func (ls *LoadSpan) SetCacheHit(hit bool) {
	ls.span.SetAttributes(attribute.Bool("sync.load.cache_hit", hit))
}

// End ends the load span with success status.
func (ls *LoadSpan) End() {
	ls.span.SetStatus(codes.Ok, "load completed")
	ls.span.End()
}

// EndWithError ends the load span with error status.
func (ls *LoadSpan) EndWithError(err error) {
	ls.span.RecordError(err)
	ls.span.SetStatus(codes.Error, err.Error())
	ls.span.End()
}

// MutateSpan covers a single Mutate call.
type MutateSpan struct {
	span trace.Span
}

// StartMutateSpan starts a span for a mutation.
func (t *Tracer) StartMutateSpan(ctx context.Context, scope, kind, mutationID string) (context.Context, *MutateSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.mutate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sync.scope", scope),
			attribute.String("sync.mutation.kind", kind),
			attribute.String("sync.mutation.id", mutationID),
		),
	)
	return ctx, &MutateSpan{span: span}
}

// SetQueued records whether the mutation went to the outbox.
func (ms *MutateSpan) SetQueued(queued bool) {
	ms.span.SetAttributes(attribute.Bool("sync.mutation.queued", queued))
}

// End ends the mutate span with success status.
func (ms *MutateSpan) End() {
	ms.span.SetStatus(codes.Ok, "mutation accepted")
	ms.span.End()
}

// EndWithError ends the mutate span with error status.
func (ms *MutateSpan) EndWithError(err error) {
	ms.span.RecordError(err)
	ms.span.SetStatus(codes.Error, err.Error())
	ms.span.End()
}

// DrainSpan covers replay of one scope's outbox.
type DrainSpan struct {
	span trace.Span
}

// StartDrainSpan starts a span for draining a scope.
func (t *Tracer) StartDrainSpan(ctx context.Context, scope string, queued int) (context.Context, *DrainSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.drain",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sync.scope", scope),
			attribute.Int("sync.drain.queued", queued),
		),
	)
	return ctx, &DrainSpan{span: span}
}

// SetResult records how far the drain got.
func (ds *DrainSpan) SetResult(applied, dropped, remaining int, halted bool) {
	ds.span.SetAttributes(
		attribute.Int("sync.drain.applied", applied),
		attribute.Int("sync.drain.dropped", dropped),
		attribute.Int("sync.drain.remaining", remaining),
		attribute.Bool("sync.drain.halted", halted),
	)
}

// End ends the drain span with success status.
func (ds *DrainSpan) End() {
	ds.span.SetStatus(codes.Ok, "drain completed")
	ds.span.End()
}

// EndWithError ends the drain span with error status.
func (ds *DrainSpan) EndWithError(err error) {
	ds.span.RecordError(err)
	ds.span.SetStatus(codes.Error, err.Error())
	ds.span.End()
}

// RemoteSpan represents a request to the remote store.
type RemoteSpan struct {
	span trace.Span
}

// StartRemoteSpan starts a client span for a remote store operation.
func (t *Tracer) StartRemoteSpan(ctx context.Context, operation, scope string) (context.Context, *RemoteSpan) {
	ctx, span := t.tracer.Start(ctx, "remote.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("remote.operation", operation),
			attribute.String("sync.scope", scope),
		),
	)
	return ctx, &RemoteSpan{span: span}
}

// SetStatusCode records the HTTP status returned by the remote.
func (rs *RemoteSpan) SetStatusCode(code int) {
	rs.span.SetAttributes(semconv.HTTPResponseStatusCode(code))
}

// End ends the remote span with success status.
func (rs *RemoteSpan) End() {
	rs.span.SetStatus(codes.Ok, "remote request completed")
	rs.span.End()
}

// EndWithError ends the remote span with error status.
func (rs *RemoteSpan) EndWithError(err error) {
	rs.span.RecordError(err)
	rs.span.SetStatus(codes.Error, err.Error())
	rs.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// SetAttribute sets an attribute on the current span.
func SetAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	}
}
