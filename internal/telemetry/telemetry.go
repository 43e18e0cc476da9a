// Package telemetry initializes OpenTelemetry tracing and metrics exporters.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown combines multiple shutdown functions.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry tracer and meter providers.
// If endpoint is empty, OTEL is disabled and no-op providers are used.
// Returns a shutdown function that must be called during graceful shutdown.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	// Trace exporter.
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp,
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Register W3C Trace Context and Baggage propagators so trace
	// context survives calls to the external journal system.
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	// Metric exporter.
	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(15*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return shutdown, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Metrics bundles the runtime's counters. All methods are safe on a
// zero-value receiver obtained from NewMetrics with a no-op provider.
type Metrics struct {
	workflows metric.Int64Counter
	syncs     metric.Int64Counter
	decisions metric.Int64Counter
	messages  metric.Int64Counter
}

// NewMetrics registers the runtime's instruments on the given scope.
func NewMetrics(scope string) (*Metrics, error) {
	meter := Meter(scope)
	m := &Metrics{}
	var err error
	if m.workflows, err = meter.Int64Counter("folio.workflows.completed",
		metric.WithDescription("Workflow runs by name and status")); err != nil {
		return nil, fmt.Errorf("telemetry: create counter: %w", err)
	}
	if m.syncs, err = meter.Int64Counter("folio.syncs.completed",
		metric.WithDescription("Entity synchronizations by status")); err != nil {
		return nil, fmt.Errorf("telemetry: create counter: %w", err)
	}
	if m.decisions, err = meter.Int64Counter("folio.decisions.made",
		metric.WithDescription("Decisions by variant and outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: create counter: %w", err)
	}
	if m.messages, err = meter.Int64Counter("folio.messages.sent",
		metric.WithDescription("Messages dispatched by channel")); err != nil {
		return nil, fmt.Errorf("telemetry: create counter: %w", err)
	}
	return m, nil
}

// RecordWorkflow counts one workflow run.
func (m *Metrics) RecordWorkflow(ctx context.Context, name, status string) {
	if m == nil || m.workflows == nil {
		return
	}
	m.workflows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", name),
		attribute.String("status", status),
	))
}

// RecordSync counts one entity synchronization.
func (m *Metrics) RecordSync(ctx context.Context, entityType, status string) {
	if m == nil || m.syncs == nil {
		return
	}
	m.syncs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", entityType),
		attribute.String("status", status),
	))
}

// RecordDecision counts one decision.
func (m *Metrics) RecordDecision(ctx context.Context, variant string, canProceed bool) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant", variant),
		attribute.Bool("can_proceed", canProceed),
	))
}

// RecordMessage counts one dispatched message.
func (m *Metrics) RecordMessage(ctx context.Context, channel string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
	))
}
