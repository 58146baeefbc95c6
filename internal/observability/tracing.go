package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// OTLP exporter defaults.
const (
	DefaultOTLPRetryInitialInterval = 1 * time.Second
	DefaultOTLPRetryMaxInterval     = 30 * time.Second
	DefaultOTLPRetryMaxElapsedTime  = 1 * time.Minute
	DefaultOTLPTimeout              = 10 * time.Second
	DefaultOTLPReconnectionPeriod   = 10 * time.Second
)

// TracerName is the instrumentation scope of spans started by avaegress.
const TracerName = "github.com/vyrodovalexey/avaegress"

// TracerConfig contains tracing configuration.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	SamplingRate   float64
	Enabled        bool
}

// Tracer wraps OpenTelemetry tracing functionality.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracerConfig
}

// NewTracer creates a tracer. A disabled tracer delegates to the global
// provider, which records nothing unless another one was installed.
func NewTracer(cfg TracerConfig, opts ...sdktrace.TracerProviderOption) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{
			config: cfg,
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	ctx := context.Background()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg.SamplingRate)),
	}

	if cfg.OTLPEndpoint != "" {
		var exporter *otlptrace.Exporter
		exporter, err = otlptracegrpc.New(ctx, buildOTLPExporterOptions(cfg)...)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	providerOpts = append(providerOpts, opts...)

	provider := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
		config:   cfg,
	}, nil
}

// createSampler creates a sampler based on the sampling rate.
func createSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// buildOTLPExporterOptions builds OTLP gRPC exporter options.
func buildOTLPExporterOptions(cfg TracerConfig) []otlptracegrpc.Option {
	return []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(DefaultOTLPTimeout),
		otlptracegrpc.WithReconnectionPeriod(DefaultOTLPReconnectionPeriod),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: DefaultOTLPRetryInitialInterval,
			MaxInterval:     DefaultOTLPRetryMaxInterval,
			MaxElapsedTime:  DefaultOTLPRetryMaxElapsedTime,
		}),
	}
}

// Tracer returns the OpenTelemetry tracer spans are started from.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// Enabled reports whether the tracer exports spans of its own.
func (t *Tracer) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a span and stores its IDs in the returned context so
// loggers built with WithContext carry them.
func (t *Tracer) StartSpan(
	ctx context.Context,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ContextWithSpan(ctx, span), span
}

// SpanFromContext returns the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan adds the trace and span IDs of span to ctx for logging.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	sc := span.SpanContext()
	if sc.HasTraceID() {
		ctx = ContextWithTraceID(ctx, sc.TraceID().String())
	}
	if sc.HasSpanID() {
		ctx = ContextWithSpanID(ctx, sc.SpanID().String())
	}
	return ctx
}
