package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// SetupTracing initializes OpenTelemetry tracing with stdout exporter (for demo; replace with OTLP in prod)
func SetupTracing(serviceName string) func() {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatalf("failed to initialize stdouttrace exporter: %v", err)
	}
	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return func() { _ = provider.Shutdown(context.Background()) }
}

// SetupPrometheusMetrics initializes the Prometheus metrics exporter. The
// registry is served on the router's /metrics endpoint.
func SetupPrometheusMetrics() *metric.MeterProvider {
	exp, err := prometheus.New()
	if err != nil {
		log.Fatalf("failed to initialize prometheus exporter: %v", err)
	}
	mp := metric.NewMeterProvider(metric.WithReader(exp))
	otel.SetMeterProvider(mp)
	return mp
}

// ChatMetrics records per-turn chat pipeline measurements.
type ChatMetrics struct {
	turns    otelmetric.Int64Counter
	tokens   otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
}

// NewChatMetrics registers the chat instruments on the global meter.
func NewChatMetrics() (*ChatMetrics, error) {
	meter := otel.Meter("lighttavern/chat")

	turns, err := meter.Int64Counter("chat_turns_total",
		otelmetric.WithDescription("Completed chat turns by provider and outcome"))
	if err != nil {
		return nil, err
	}
	tokens, err := meter.Int64Counter("chat_tokens_total",
		otelmetric.WithDescription("Token usage reported by upstream providers"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("chat_stream_duration_seconds",
		otelmetric.WithDescription("Wall time of the relayed stream"))
	if err != nil {
		return nil, err
	}

	return &ChatMetrics{turns: turns, tokens: tokens, duration: duration}, nil
}

// RecordTurn records one finished turn.
func (m *ChatMetrics) RecordTurn(ctx context.Context, provider, model string, elapsed time.Duration, promptTokens, completionTokens int, failed bool) {
	if m == nil {
		return
	}

	outcome := "ok"
	if failed {
		outcome = "error"
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)

	m.turns.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if promptTokens > 0 || completionTokens > 0 {
		m.tokens.Add(ctx, int64(promptTokens), otelmetric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", "prompt"),
		))
		m.tokens.Add(ctx, int64(completionTokens), otelmetric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", "completion"),
		))
	}
}
