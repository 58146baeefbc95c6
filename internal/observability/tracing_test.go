package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "avaegress"})
	require.NoError(t, err)
	assert.False(t, tracer.Enabled())
	assert.NotNil(t, tracer.Tracer())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

// Enabled tracers install the global provider, so these tests do not run
// in parallel.

func TestNewTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer(TracerConfig{
		ServiceName:    "avaegress",
		ServiceVersion: "test",
		Enabled:        true,
		SamplingRate:   1.0,
	}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	assert.True(t, tracer.Enabled())

	ctx, span := tracer.StartSpan(context.Background(), "engine.Apply")
	span.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), TraceIDFromContext(ctx))
	assert.Equal(t, span.SpanContext().SpanID().String(), SpanIDFromContext(ctx))
	assert.Equal(t, span, SpanFromContext(ctx))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "engine.Apply", ended[0].Name())

	var service string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "avaegress", service)
}

func TestNewTracer_WithEndpoint(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "avaegress",
		Enabled:      true,
		SamplingRate: 0.5,
		OTLPEndpoint: "127.0.0.1:1",
	})
	require.NoError(t, err, "the exporter connects lazily")
	assert.True(t, tracer.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tracer.Shutdown(ctx)
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"always", 1.0, "AlwaysOnSampler"},
		{"above one", 2.0, "AlwaysOnSampler"},
		{"never", 0, "AlwaysOffSampler"},
		{"negative", -1, "AlwaysOffSampler"},
		{"ratio", 0.25, "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, createSampler(tt.rate).Description())
		})
	}
}

func TestBuildOTLPExporterOptions(t *testing.T) {
	t.Parallel()

	opts := buildOTLPExporterOptions(TracerConfig{OTLPEndpoint: "collector:4317"})
	assert.Len(t, opts, 5)
}

func TestContextWithSpan_NoRecording(t *testing.T) {
	t.Parallel()

	ctx := ContextWithSpan(context.Background(), trace.SpanFromContext(context.Background()))
	assert.Empty(t, TraceIDFromContext(ctx))
	assert.Empty(t, SpanIDFromContext(ctx))
}
