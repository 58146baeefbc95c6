package main

import (
	"net/http"
	"reflect"
	"sync"

	"github.com/vyrodovalexey/avaegress/internal/catalog"
	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/health"
	"github.com/vyrodovalexey/avaegress/internal/loader"
	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/payload"
)

// application holds all application components.
type application struct {
	// mu guards config, which reloads replace.
	mu            sync.Mutex
	config        *config.EgressConfig
	store         *payload.Store
	loader        *loader.Loader
	registry      *engine.Registry
	engine        *engine.Engine
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	healthChecker *health.Checker
	metricsServer *http.Server
	breakerHook   payload.SelectorOption
	logger        observability.Logger
}

// initApplication publishes the configured payload and registers the rules.
func initApplication(cfg *config.EgressConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(cfg.Spec.Observability.Metrics.Namespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, err
	}

	store := payload.NewStore(
		payload.WithStoreLogger(logger),
		payload.WithUpdateHook(metrics.RecordPayloadUpdate),
	)
	breakerHook := payload.WithBreakerStateHook(func(proxy, from, to string) {
		logger.Warn("proxy circuit breaker state change",
			observability.String("proxy", proxy),
			observability.String("from", from),
			observability.String("to", to),
		)
		metrics.RecordBreakerTransition(from, to)
	})
	if err = payload.Apply(store, cfg, breakerHook); err != nil {
		return nil, err
	}

	ldr := loader.New(loader.WithLogger(logger))
	if err = catalog.RegisterCapabilities(ldr.Capabilities()); err != nil {
		return nil, err
	}

	opts := catalog.OptionsFromConfig(cfg.Spec.Rules)
	opts.OnCELError = func(expr string, err error) {
		logger.Warn("custom rule expression failed",
			observability.String("expression", expr),
			observability.Error(err),
		)
	}
	rules, err := catalog.Rules(ldr, opts)
	if err != nil {
		return nil, err
	}

	registry, err := engine.NewRegistry(logger, rules...)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(registry, store,
		engine.WithLogger(logger),
		engine.WithSink(engine.NewLogSink(logger)),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer.Tracer()),
	)
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker(version, logger)
	checker.RegisterCheck("payload", health.PayloadCheck(store, override.Keys()...))
	checker.RegisterCheck("rules", health.RulesCheck(eng))
	checker.RegisterCheck("proxy", health.ProxyCheck(store))

	return &application{
		config:        cfg,
		store:         store,
		loader:        ldr,
		registry:      registry,
		engine:        eng,
		metrics:       metrics,
		tracer:        tracer,
		healthChecker: checker,
		breakerHook:   breakerHook,
		logger:        logger,
	}, nil
}

// initTracer builds the tracer described by the observability settings.
func initTracer(cfg *config.EgressConfig) (*observability.Tracer, error) {
	tracing := cfg.Spec.Observability.Tracing
	return observability.NewTracer(observability.TracerConfig{
		ServiceName:    tracing.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   tracing.OTLPEndpoint,
		SamplingRate:   tracing.SamplingRate,
		Enabled:        tracing.Enabled,
	})
}

// reloadPayload publishes the payload of a reloaded configuration. Rule
// changes only take effect after a restart.
func (app *application) reloadPayload(cfg *config.EgressConfig) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if err := payload.Apply(app.store, cfg, app.breakerHook); err != nil {
		app.logger.Error("failed to publish reloaded payload", observability.Error(err))
		return
	}
	if !reflect.DeepEqual(app.config.Spec.Rules, cfg.Spec.Rules) {
		app.logger.Warn("rule changes require a restart; only the payload was reloaded")
	}
	app.config = cfg
	app.logger.Info("payload reloaded",
		observability.Uint64("generation", app.store.Generation()),
	)
}
