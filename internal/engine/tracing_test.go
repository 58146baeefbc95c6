package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
)

var sendMethod = shape.Method{Name: "send", Params: []string{"context.Context", "string"}, Returns: []string{"string"}}

// newSender is a component whose send method takes the caller's context.
func newSender(name string) *override.Handle {
	proxy := override.NewVar(stringType, "direct")
	desc := shape.Descriptor{Name: name, Fields: []string{"proxy"}, Methods: []shape.Method{sendMethod}}
	return override.NewHandle(desc, proxy).
		DefineField("proxy", proxy).
		DefineTypedMethod(sendMethod, []reflect.Type{stringType}, func(args []any) ([]any, error) {
			return []any{args[1].(string) + " via " + proxy.Get().(string)}, nil
		})
}

func senderRule() *Rule {
	return &Rule{
		ID:        "sender-proxy",
		Family:    "proxy",
		Predicate: shape.DeclaresField("proxy"),
		Bindings: []Binding{
			Bind(shape.MethodNamed("send"),
				override.FieldsBeforeCall(override.Assign("proxy", override.KeyProxySelector))),
		},
	}
}

func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, provider
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestEngine_ApplyContext_RecordsSpan(t *testing.T) {
	t.Parallel()

	recorder, provider := newRecordingTracer(t)
	tracer := provider.Tracer("test")
	e := newEngine(t, newStore(t), []Option{WithTracer(tracer)}, senderRule())

	parent, root := tracer.Start(context.Background(), "startup")
	h := newSender("example.com/mail.Sender")
	_, out := e.ApplyContext(parent, h)
	root.End()
	require.Equal(t, Transformed, out.Kind)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	apply := ended[0]
	assert.Equal(t, "engine.Apply", apply.Name())
	assert.Equal(t, root.SpanContext().SpanID(), apply.Parent().SpanID())
	assert.Equal(t, codes.Unset, apply.Status().Code)

	attrs := spanAttrs(apply)
	assert.Equal(t, "example.com/mail.Sender", attrs["avaegress.component"].AsString())
	assert.Equal(t, "transformed", attrs["avaegress.outcome"].AsString())
	assert.Equal(t, []string{"sender-proxy"}, attrs["avaegress.rules"].AsStringSlice())
	require.Len(t, attrs["avaegress.strategies"].AsStringSlice(), 1)
}

func TestEngine_ApplyContext_InvocationsAreSpanEvents(t *testing.T) {
	t.Parallel()

	recorder, provider := newRecordingTracer(t)
	tracer := provider.Tracer("test")
	e := newEngine(t, newStore(t), []Option{WithTracer(tracer)}, senderRule())

	h := newSender("example.com/mail.Sender")
	_, out := e.Apply(h)
	require.Equal(t, Transformed, out.Kind)

	ctx, request := tracer.Start(context.Background(), "request")
	res, err := h.Invoke("send", ctx, "mx.test")
	require.NoError(t, err)
	assert.Equal(t, "mx.test via operator-proxy", res[0])

	// Calls without a span in their context add no events.
	_, err = h.Invoke("send", context.Background(), "mx.test")
	require.NoError(t, err)
	request.End()

	var span sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "request" {
			span = s
		}
	}
	require.NotNil(t, span)
	events := span.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "strategy.invoke", events[0].Name)

	attrs := make(map[attribute.Key]string)
	for _, kv := range events[0].Attributes {
		attrs[kv.Key] = kv.Value.AsString()
	}
	assert.Equal(t, "sender-proxy", attrs["avaegress.rule"])
	assert.Equal(t, "example.com/mail.Sender", attrs["avaegress.component"])
	assert.Equal(t, "ReplaceFieldBeforeCall", attrs["avaegress.strategy"])
}

func TestEngine_ApplyContext_FailureStatusAndLogContext(t *testing.T) {
	t.Parallel()

	recorder, provider := newRecordingTracer(t)
	core, logs := observer.New(zap.WarnLevel)
	e := newEngine(t, newStore(t), []Option{
		WithTracer(provider.Tracer("test")),
		WithLogger(observability.NewLoggerFromZap(zap.New(core))),
	}, senderRule())

	// Declares the field in its shape but never defines it.
	desc := shape.Descriptor{Name: "example.com/mail.Broken", Fields: []string{"proxy"}, Methods: []shape.Method{sendMethod}}
	h := override.NewHandle(desc, nil).
		DefineMethod(sendMethod, func([]any) ([]any, error) { return []any{""}, nil })

	_, out := e.Apply(h)
	require.Equal(t, Failed, out.Kind)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "failed", spanAttrs(ended[0])["avaegress.outcome"].AsString())
	require.NotEmpty(t, ended[0].Events(), "failures are recorded on the span")
	assert.Equal(t, "exception", ended[0].Events()[0].Name)

	disabled := logs.FilterMessage("rule disabled").All()
	require.Len(t, disabled, 1)
	fields := disabled[0].ContextMap()
	assert.Equal(t, ended[0].SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, ended[0].SpanContext().SpanID().String(), fields["span_id"])
	assert.Equal(t, "example.com/mail.Broken", fields["component"])
}
