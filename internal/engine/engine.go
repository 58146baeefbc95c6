package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// noRule labels evaluations no rule took part in.
const noRule = "none"

// Engine evaluates components against a registry and applies the matching
// rules. Evaluate and Apply are safe for concurrent use.
type Engine struct {
	id       string
	registry *Registry
	src      override.Source
	sink     Sink
	logger   observability.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer

	// disabled holds rules whose bindings failed on a live component.
	mu       sync.RWMutex
	disabled map[string]error
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithSink sets the sink receiving evaluation records.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the engine.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithTracer sets the tracer Apply spans are started from. The global
// provider is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithID sets the engine ID reported in records. A random ID is used by
// default.
func WithID(id string) Option {
	return func(e *Engine) {
		e.id = id
	}
}

// New creates an engine over registry reading payloads from src. Every
// payload key used by an active rule must resolve in src.
func New(registry *Registry, src override.Source, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if src == nil {
		return nil, errors.New("engine: payload source is required")
	}

	e := &Engine{
		registry: registry,
		src:      src,
		sink:     nopSink{},
		logger:   observability.NopLogger(),
		metrics:  nopMetrics{},
		disabled: make(map[string]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(observability.TracerName)
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	e.logger = e.logger.With(observability.String("engine_id", e.id))

	for _, key := range registry.Keys() {
		if _, err := src.Lookup(key); err != nil {
			var le *override.LookupError
			if errors.As(err, &le) {
				return nil, err
			}
			return nil, &override.LookupError{Key: key, Err: err}
		}
	}

	for _, rule := range registry.All() {
		reason, ok := registry.disabled[rule.ID]
		if !ok {
			continue
		}
		component := ""
		if rule.Reference != nil {
			component = rule.Reference.Name
		}
		e.record(Outcome{
			Component: component,
			Kind:      Failed,
			Rules:     []string{rule.ID},
			Failures:  []Failure{{Rule: rule.ID, Err: reason}},
		})
	}
	e.updateRuleMetrics()

	e.logger.Info("engine initialized",
		observability.Int("rules", len(registry.Rules())),
		observability.Strings("keys", registry.Keys()),
	)
	return e, nil
}

// ID returns the engine ID.
func (e *Engine) ID() string {
	return e.id
}

// Rules returns the rules currently applied by the engine.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*Rule, 0, len(e.registry.rules))
	for _, rule := range e.registry.rules {
		if _, off := e.disabled[rule.ID]; !off {
			rules = append(rules, rule)
		}
	}
	return rules
}

// Disabled returns every disabled rule with the reason, whether disabled at
// registration or after failing to bind to a live component.
func (e *Engine) Disabled() map[string]error {
	out := e.registry.Disabled()

	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, err := range e.disabled {
		out[id] = err
	}
	return out
}

// Evaluate reports which rules match d without changing anything.
func (e *Engine) Evaluate(d shape.Descriptor) Outcome {
	out := Outcome{EngineID: e.id, Component: d.Name, Kind: Unmatched}

	if err := d.Validate(); err != nil {
		out.Failures = []Failure{{Err: &PredicateError{Component: d.Name, Err: err}}}
		e.finish(out)
		return out
	}

	for _, rule := range e.Rules() {
		if rule.Matches(d) {
			out.Rules = append(out.Rules, rule.ID)
		}
	}
	if len(out.Rules) > 0 {
		out.Kind = Matched
	}
	e.finish(out)
	return out
}

// Apply applies every matching rule to h in registration order and
// returns h. A component no rule matches is returned unchanged.
func (e *Engine) Apply(h *override.Handle) (*override.Handle, Outcome) {
	return e.ApplyContext(context.Background(), h)
}

// ApplyContext is Apply under an "engine.Apply" span started from ctx. The
// span carries the component, the outcome and the matched rules.
func (e *Engine) ApplyContext(ctx context.Context, h *override.Handle) (*override.Handle, Outcome) {
	d := h.Descriptor()
	ctx, span := e.tracer.Start(ctx, "engine.Apply",
		trace.WithAttributes(attribute.String("avaegress.component", d.Name)))
	defer span.End()
	ctx = observability.ContextWithComponent(observability.ContextWithSpan(ctx, span), d.Name)

	out := e.apply(ctx, h, d)

	span.SetAttributes(
		attribute.String("avaegress.outcome", out.Kind.String()),
		attribute.StringSlice("avaegress.rules", out.Rules),
		attribute.StringSlice("avaegress.strategies", out.Strategies),
	)
	if len(out.Failures) > 0 && out.Kind != Transformed {
		span.SetStatus(codes.Error, out.Failures[0].Err.Error())
	}
	for _, f := range out.Failures {
		span.RecordError(f.Err, trace.WithAttributes(attribute.String("avaegress.rule", f.Rule)))
	}
	return h, out
}

func (e *Engine) apply(ctx context.Context, h *override.Handle, d shape.Descriptor) Outcome {
	out := Outcome{EngineID: e.id, Component: d.Name, Kind: Unmatched}

	if err := d.Validate(); err != nil {
		out.Failures = []Failure{{Err: &PredicateError{Component: d.Name, Err: err}}}
		e.finish(out)
		return out
	}

	hooks := e.hooks(ctx, d.Name)
	var matched, applied int
	for _, rule := range e.Rules() {
		if !rule.Matches(d) {
			continue
		}
		matched++
		out.Rules = append(out.Rules, rule.ID)

		strategies, err := rule.Apply(h, e.src, hooks)
		out.Strategies = append(out.Strategies, strategies...)
		if err != nil {
			out.Failures = append(out.Failures, Failure{Rule: rule.ID, Err: err})
			if errors.Is(err, override.ErrBinding) {
				e.disable(ctx, rule, err)
			}
			continue
		}
		applied++
	}

	switch {
	case applied > 0:
		out.Kind = Transformed
	case matched > 0:
		out.Kind = Failed
	}
	e.finish(out)
	return out
}

// hooks observe interceptors installed on component. Invocations become
// events on the span of the intercepted call, when it has one.
func (e *Engine) hooks(ctx context.Context, component string) override.Hooks {
	logger := e.logger.WithContext(ctx)
	return override.Hooks{
		OnInvoke: func(callCtx context.Context, rule string, kind override.Kind) {
			e.metrics.RecordStrategyInvocation(rule, kind.String())
			trace.SpanFromContext(callCtx).AddEvent("strategy.invoke", trace.WithAttributes(
				attribute.String("avaegress.component", component),
				attribute.String("avaegress.rule", rule),
				attribute.String("avaegress.strategy", kind.String()),
			))
		},
		OnError: func(rule string, err error) {
			logger.Error("override could not be applied",
				observability.String("rule", rule),
				observability.Error(err),
			)
		},
	}
}

// disable turns rule off for the rest of the engine's lifetime. The first
// reason is kept and logged.
func (e *Engine) disable(ctx context.Context, rule *Rule, err error) {
	e.mu.Lock()
	if _, ok := e.disabled[rule.ID]; ok {
		e.mu.Unlock()
		return
	}
	e.disabled[rule.ID] = err
	e.mu.Unlock()

	e.logger.WithContext(ctx).Warn("rule disabled",
		observability.String("rule", rule.ID),
		observability.String("family", rule.Family),
		observability.Error(err),
	)
	e.updateRuleMetrics()
}

func (e *Engine) updateRuleMetrics() {
	disabled := e.Disabled()
	e.metrics.SetRules(len(e.registry.all)-len(disabled), len(disabled))
}

func (e *Engine) finish(out Outcome) {
	if len(out.Rules) == 0 {
		e.metrics.RecordEvaluation(noRule, out.Kind.String())
	}
	failed := make(map[string]bool, len(out.Failures))
	for _, f := range out.Failures {
		failed[f.Rule] = true
	}
	for _, rule := range out.Rules {
		kind := out.Kind
		if failed[rule] {
			kind = Failed
		}
		e.metrics.RecordEvaluation(rule, kind.String())
	}
	e.record(out)
}

// record emits out to the sink. A panicking sink never aborts an
// evaluation.
func (e *Engine) record(out Outcome) {
	out.EngineID = e.id
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("outcome sink panicked",
				observability.String("component", out.Component),
				observability.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	e.sink.Record(out)
}
