package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avaegress/internal/health"
	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// createMetricsServer creates the metrics HTTP server.
func createMetricsServer(
	addr string,
	path string,
	metrics *observability.Metrics,
	healthChecker *health.Checker,
	logger observability.Logger,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.HandleFunc("/health", healthChecker.HealthHandler())
	mux.HandleFunc("/ready", healthChecker.ReadinessHandler())
	mux.HandleFunc("/live", healthChecker.LivenessHandler())

	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runMetricsServer runs the metrics HTTP server.
func runMetricsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func startMetricsServerIfEnabled(app *application) {
	cfg := app.config.Spec.Observability.Metrics
	if !cfg.Enabled {
		return
	}

	app.metricsServer = createMetricsServer(cfg.Address, cfg.Path, app.metrics, app.healthChecker, app.logger)
	go runMetricsServer(app.metricsServer, app.logger)
}
