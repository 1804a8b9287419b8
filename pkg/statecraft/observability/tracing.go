package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig selects and configures the span exporter a TracerProvider
// ships spans to. Backend is one of "jaeger", "zipkin", "stdout", or ""
// (tracing disabled, a no-op tracer is installed).
type TracingConfig struct {
	Backend     string
	Endpoint    string
	ServiceName string
}

// NewTracerProvider builds an sdktrace.TracerProvider wired to the
// configured exporter and registers it as the global provider. The returned
// shutdown func must be called on process exit to flush pending spans.
func NewTracerProvider(cfg TracingConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.Backend == "" {
		tp := trace.NewNoopTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "statecraft"
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Backend {
	case "jaeger":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:14268/api/traces"
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	case "zipkin":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:9411/api/v2/spans"
		}
		return zipkin.New(endpoint)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("observability: unknown trace backend %q", cfg.Backend)
	}
}

// Tracer is the tracer used for step/append/archive/restore/lock spans,
// named like a Go import path per OpenTelemetry convention.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/statecraftio/statecraft/pkg/statecraft")
}

// StartStepSpan starts a span around one engine.Step call.
func StartStepSpan(ctx context.Context, machineID, rootEventID, eventType string) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, "statecraft.step")
	span.SetAttributes(
		attribute.String("machine_id", machineID),
		attribute.String("root_event_id", rootEventID),
		attribute.String("event_type", eventType),
	)
	return ctx, span
}

// StartSpan starts a generically-named span for the event log, archive,
// and lock subsystems, tagged with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err (if any) on span, sets a duration attribute, and
// ends it. Call via defer immediately after StartSpan/StartStepSpan.
func EndSpan(span trace.Span, started time.Time, err error) {
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(started).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
