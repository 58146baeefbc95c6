// Package observability provides logging, metrics and tracing
// functionality for the egress override engine.
//
// # Logging
//
// The Logger interface provides structured logging via zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("component transformed",
//	    observability.String("component", "net/http.Transport"),
//	    observability.Strings("rules", []string{"net-http-transport"}),
//	)
//
// # Metrics
//
// Prometheus metrics for rule evaluations, intercepted calls and payload
// updates, registered on a private registry:
//
//	metrics := observability.NewMetrics("avaegress")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry spans cover engine evaluations; an OTLP gRPC exporter is
// attached when an endpoint is configured. StartSpan stores the trace and
// span IDs in the context, so a logger built with WithContext tags its
// records with them.
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    Enabled:      true,
//	    ServiceName:  "avaegress",
//	    OTLPEndpoint: "collector:4317",
//	    SamplingRate: 1.0,
//	})
//	defer tracer.Shutdown(ctx)
package observability
