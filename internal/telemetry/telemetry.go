// Package telemetry wires the process-wide OpenTelemetry trace pipeline.
// Tracing is off unless an OTLP endpoint is configured; the linker and
// verifier spans then flow through a batching OTLP/HTTP exporter.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"
)

// Config holds exporter settings. The zero value disables tracing.
type Config struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port).
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// SampleRatio is the trace sampling ratio in [0, 1]. Zero means 1.
	SampleRatio float64
}

// ShutdownFunc flushes and stops the trace pipeline.
type ShutdownFunc func(ctx context.Context) error

// Setup installs the global tracer provider. With no endpoint configured it
// leaves the default no-op provider in place and returns a no-op shutdown,
// so instrumented code never needs to know whether tracing is on.
func Setup(ctx context.Context, cfg Config, serviceName, version string, logger *slog.Logger) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("trace export enabled", "endpoint", cfg.Endpoint, "sample_ratio", ratio)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(ctx)
	}, nil
}
