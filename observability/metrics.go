package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterProvider global instance
var globalMeterProvider *sdkmetric.MeterProvider

// InitMetrics initializes OpenTelemetry metrics with Prometheus export.
// The exporter registers with the default Prometheus registry, so the
// metrics are served by promhttp.Handler().
func InitMetrics(ctx context.Context, svc Service) (*sdkmetric.MeterProvider, error) {
	res, err := newResource(ctx, svc)
	if err != nil {
		return nil, err
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	globalMeterProvider = provider
	return provider, nil
}

// GetMeter returns a meter from the current global meter provider.
func GetMeter(name string) metric.Meter {
	// Resolved on every call so tests can inject their own provider
	return otel.Meter(name)
}

// ToolMetrics records tool invocation counts, failures and latency.
// A nil *ToolMetrics records nothing.
type ToolMetrics struct {
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolMetrics creates the instruments under the given scope, e.g.
// "toolplan.executor" or "toolplan.toolserver".
func NewToolMetrics(meter metric.Meter, scope string) (*ToolMetrics, error) {
	invocations, err := meter.Int64Counter(
		scope+".invocations",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		scope+".failures",
		metric.WithDescription("Total number of failed tool invocations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		scope+".latency",
		metric.WithDescription("Tool invocation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	return &ToolMetrics{
		invocations: invocations,
		failures:    failures,
		latency:     latency,
	}, nil
}

// Record records one invocation. outcome is "success", "not_found" or
// "error".
func (m *ToolMetrics) Record(ctx context.Context, tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("status", outcome),
	)
	m.invocations.Add(ctx, 1, attrs)
	if outcome != "success" {
		m.failures.Add(ctx, 1, attrs)
	}
	m.latency.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
}

// ShutdownMetrics gracefully shuts down the meter provider.
func ShutdownMetrics(ctx context.Context) error {
	if globalMeterProvider != nil {
		return globalMeterProvider.Shutdown(ctx)
	}
	return nil
}
