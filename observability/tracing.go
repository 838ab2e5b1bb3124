// Package observability provides OpenTelemetry integration for toolplan.
//
// A request is traced from the assistant through the planner and every
// executor step. Calls forwarded to a remote tool server carry the W3C
// trace context in the request's meta field, so the server's spans join
// the caller's trace.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/toolplan/config"
)

// Service roles recorded on the resource as toolplan.role.
const (
	RoleAssistant  = "assistant"
	RoleToolServer = "toolserver"
)

// Service identifies the process that emits telemetry.
type Service struct {
	Name    string
	Version string
	// Role is RoleAssistant or RoleToolServer.
	Role string
}

var (
	globalTracerProvider *sdktrace.TracerProvider

	// Console spans go to stderr so they never mix with command output.
	consoleWriter io.Writer = os.Stderr
)

func newResource(ctx context.Context, svc Service) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(svc.Name)}
	if svc.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(svc.Version))
	}
	if svc.Role != "" {
		attrs = append(attrs, attribute.String("toolplan.role", svc.Role))
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcessPID(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// InitTracing installs a global tracer provider exporting to the
// collector and/or the console as cfg selects, and the W3C propagator used
// for the protocol's meta field. New traces are sampled at cfg.SampleRatio;
// traces continued from a caller follow the caller's decision.
func InitTracing(ctx context.Context, svc Service, cfg config.TelemetryConfig) (*sdktrace.TracerProvider, error) {
	res, err := newResource(ctx, svc)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	if cfg.OTLPEndpoint != "" {
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter for %s: %w", cfg.OTLPEndpoint, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	if cfg.ConsoleTraces {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(consoleWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracerProvider = tp
	return tp, nil
}

// GetTracer returns a tracer from the current global provider. It is
// resolved on every call so tests can install their own provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// InjectMeta writes the current trace context into a request's meta map
// under the propagator's header names (traceparent, tracestate, baggage).
// It returns meta, allocated if nil and anything was written.
func InjectMeta(ctx context.Context, meta map[string]interface{}) map[string]interface{} {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return meta
	}
	if meta == nil {
		meta = make(map[string]interface{}, len(carrier))
	}
	for k, v := range carrier {
		meta[k] = v
	}
	return meta
}

// ExtractMeta returns ctx carrying the trace context found in a request's
// meta map. Non-string values and unrelated keys are ignored.
func ExtractMeta(ctx context.Context, meta map[string]interface{}) context.Context {
	if len(meta) == 0 {
		return ctx
	}
	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}
	for _, field := range propagator.Fields() {
		if v, ok := meta[field].(string); ok {
			carrier[field] = v
		}
	}
	if len(carrier) == 0 {
		return ctx
	}
	return propagator.Extract(ctx, carrier)
}

// EndSpan records err on the span, sets its status and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SpanAttributes returns attributes for the simple-typed values of a map,
// prefixed with prefix. Other value types are skipped.
func SpanAttributes(prefix string, values map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(values))
	for key, value := range values {
		name := prefix + key
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(name, Truncate(v, 100)))
		case int:
			attrs = append(attrs, attribute.Int(name, v))
		case int64:
			attrs = append(attrs, attribute.Int64(name, v))
		case float64:
			attrs = append(attrs, attribute.Float64(name, v))
		case bool:
			attrs = append(attrs, attribute.Bool(name, v))
		}
	}
	return attrs
}

// Shutdown flushes and stops the provider installed by InitTracing.
func Shutdown(ctx context.Context) error {
	if globalTracerProvider == nil {
		return nil
	}
	return globalTracerProvider.Shutdown(ctx)
}
