// Package health provides health, readiness and liveness endpoints for the
// egress override daemon.
//
// Readiness aggregates registered checks. PayloadCheck reports whether the
// proxy selector and trust context have been published, and RulesCheck
// whether rules are active or were disabled after drifting from the
// library shapes they target. ProxyCheck reports an open proxy circuit
// breaker:
//
//	checker := health.NewChecker(version, logger)
//	checker.RegisterCheck("payload", health.PayloadCheck(store, override.Keys()...))
//	checker.RegisterCheck("rules", health.RulesCheck(eng))
//	checker.RegisterCheck("proxy", health.ProxyCheck(store))
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/health", checker.HealthHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
//	mux.HandleFunc("/live", checker.LivenessHandler())
package health
