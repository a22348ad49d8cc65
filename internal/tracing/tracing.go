// Package tracing exports agent run spans over OTLP.
//
// A nil *Tracer is valid and records nothing, so callers can hold one
// unconditionally and never branch on whether telemetry is configured.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nextlevelbuilder/goaide/internal/config"
)

// Tracer wraps an OTLP tracer provider for the agent runtime.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var noopTracer = noop.NewTracerProvider().Tracer("goaide")

// Setup builds the process-wide tracer from the telemetry config and
// registers it globally. Returns (nil, nil) when telemetry is disabled
// or no endpoint is set.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Tracer, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, nil
	}
	service := cfg.ServiceName
	if service == "" {
		service = "goaide"
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(service)}, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (*otlptrace.Exporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// StartRun opens the root span for one agent turn.
func (t *Tracer) StartRun(ctx context.Context, channel, threadID, runID string) (context.Context, trace.Span) {
	return t.start(ctx, "agent.run",
		attribute.String("agent.channel", channel),
		attribute.String("agent.thread_id", threadID),
		attribute.String("agent.run_id", runID),
	)
}

// StartModelCall opens a span for one provider round trip.
func (t *Tracer) StartModelCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.start(ctx, "agent.model_call",
		attribute.String("gen_ai.system", provider),
		attribute.String("gen_ai.request.model", model),
	)
}

// StartTool opens a span for one tool execution.
func (t *Tracer) StartTool(ctx context.Context, name, callID string) (context.Context, trace.Span) {
	return t.start(ctx, "agent.tool",
		attribute.String("gen_ai.tool.name", name),
		attribute.String("gen_ai.tool.call_id", callID),
	)
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noopTracer.Start(ctx, name)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes buffered spans. Safe on a nil Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// AddUsage stamps token counts onto a model call span.
func AddUsage(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", promptTokens),
		attribute.Int("gen_ai.usage.output_tokens", completionTokens),
	)
}

// End closes span, recording err on it when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
