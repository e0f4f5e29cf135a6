package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerName     = "releaser/engine"
	defaultService = "releaser"
)

// Tracer wraps release stages in spans and times them. Spans are exported
// over OTLP/HTTP only when OTEL_EXPORTER_OTLP_ENDPOINT is set.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
	clock    *stageClock
	hooks    atomic.Int64
}

// Setup returns a Tracer configured from the environment.
func Setup(ctx context.Context, getenv func(string) string) (*Tracer, error) {
	t := &Tracer{clock: newStageClock(), tracer: noop.NewTracerProvider().Tracer(tracerName)}
	endpoint := getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return t, nil
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	service := getenv("OTEL_SERVICE_NAME")
	if service == "" {
		service = defaultService
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(service),
	)
	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	t.tracer = t.provider.Tracer(tracerName)
	return t, nil
}

// Noop returns a Tracer that only times stages.
func Noop() *Tracer {
	t, _ := Setup(context.Background(), func(string) string { return "" })
	return t
}

// Exporting reports whether spans leave the process.
func (t *Tracer) Exporting() bool {
	return t != nil && t.provider != nil
}

// Start opens the span of the whole run.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	t.clock.reset()
	ctx, span := t.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
	return ctx, func(err error) {
		finish(span, err)
	}
}

// Stage runs fn inside a span named name and records its duration.
func (t *Tracer) Stage(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	if t == nil {
		return fn(ctx)
	}
	ctx, span := t.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
	err := t.clock.time(name, func() error { return fn(ctx) })
	finish(span, err)
	return err
}

// CountHook records one executed hook script.
func (t *Tracer) CountHook() {
	if t != nil {
		t.hooks.Add(1)
	}
}

func finish(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Summary reports what was timed so far.
func (t *Tracer) Summary() Summary {
	if t == nil {
		return Summary{}
	}
	return t.clock.summary(int(t.hooks.Load()))
}

// Shutdown flushes exported spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
