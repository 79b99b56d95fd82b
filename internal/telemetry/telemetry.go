// Package telemetry sets up OpenTelemetry tracing and the span helpers the
// orchestrator and dispatcher use.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every calendarbot span.
const TracerName = "calendarbot"

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Span attribute keys.
const (
	AttrTool         = "calendarbot.tool"
	AttrToolCallID   = "calendarbot.tool_call_id"
	AttrStatus       = "calendarbot.status"
	AttrUser         = "calendarbot.user"
	AttrConversation = "calendarbot.conversation"
	AttrIteration    = "calendarbot.iteration"
)

type Config struct {
	Enabled        bool
	Exporter       string // none | stdout
	SamplingRate   float64
	ServiceName    string
	ServiceVersion string
	// Writer receives stdout exports; nil means os.Stdout.
	Writer io.Writer
}

// Provider owns the tracer provider installed as the global one.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup installs a global tracer provider. A disabled config leaves the
// default no-op provider in place.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return &Provider{}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "calendarbot"
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		slog.Warn("stdout traces exporter enabled - for development/debugging only", "component", "telemetry")
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartTurnSpan starts the span covering one conversation turn.
func StartTurnSpan(ctx context.Context, conversationID, userID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String(AttrConversation, conversationID),
		attribute.String(AttrUser, userID),
	))
}

// StartModelSpan starts the span for one model call.
func StartModelSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.model_call",
		trace.WithAttributes(attribute.Int(AttrIteration, iteration)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartToolSpan starts the span for a tool invocation.
func StartToolSpan(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tool."+toolName, trace.WithAttributes(
		attribute.String(AttrTool, toolName),
		attribute.String(AttrToolCallID, callID),
	))
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanStatus tags the span with a tool status.
func SetSpanStatus(span trace.Span, status string) {
	span.SetAttributes(attribute.String(AttrStatus, status))
}
