// Package engine evaluates live components against an ordered registry of
// transformer rules and installs the matching overrides.
//
// A Rule pairs a shape predicate with bindings; each binding selects
// methods and names the override strategy installed on them. Rules are
// registered once:
//
//	reg, err := engine.NewRegistry(logger, rules...)
//	if err != nil {
//	    return err
//	}
//	eng, err := engine.New(reg, store,
//	    engine.WithLogger(logger),
//	    engine.WithSink(engine.NewLogSink(logger)),
//	)
//
// Apply presents a component handle to every active rule in registration
// order. Components no rule matches are returned untouched. A rule whose
// bindings cannot be located on a live component is disabled for the
// lifetime of the engine; other rules keep applying.
//
// Every evaluation produces exactly one Outcome, delivered to the Sink.
//
// ApplyContext runs under an "engine.Apply" span from the configured
// tracer. Each time an installed strategy runs, a "strategy.invoke" event
// is added to the span carried by the intercepted call, if any.
package engine
