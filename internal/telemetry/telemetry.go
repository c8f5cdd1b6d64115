// Package telemetry sets up OpenTelemetry tracing for the relay.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/tgecho/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer used by relay components.
const InstrumentationName = "github.com/flemzord/tgecho"

// Provider owns the tracer provider for the lifetime of the process.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
	enabled  bool
}

// Options tunes Setup. Exporter, when set, replaces the OTLP exporter and
// spans are exported synchronously.
type Options struct {
	Version  string
	Exporter sdktrace.SpanExporter
}

// Setup builds a Provider from cfg. With no endpoint and no exporter the
// provider is a no-op and costs nothing per span.
func Setup(ctx context.Context, cfg config.TracingConfig, opts Options) (*Provider, error) {
	if cfg.Endpoint == "" && opts.Exporter == nil {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if opts.Version != "" {
		attrs = append(attrs, attribute.String("service.version", opts.Version))
	}
	res := resource.NewSchemaless(attrs...)

	var spanOpt sdktrace.TracerProviderOption
	if opts.Exporter != nil {
		spanOpt = sdktrace.WithSyncer(opts.Exporter)
	} else {
		exp, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		spanOpt = sdktrace.WithBatcher(exp)
	}

	tp := sdktrace.NewTracerProvider(spanOpt, sdktrace.WithResource(res))
	return &Provider{tp: tp, shutdown: tp.Shutdown, enabled: true}, nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (*otlptrace.Exporter, error) {
	var opts []otlptracehttp.Option
	if strings.Contains(cfg.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}
	return exp, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.enabled }

// Tracer returns the relay tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(InstrumentationName)
}

// Shutdown flushes pending spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}
