// Package config provides the configuration model and loading for the
// egress override engine.
//
// The configuration names the operator proxy and trust anchors that make up
// the override payload, selects catalog rules and declares custom rules.
// Payload settings can be hot reloaded; rules are fixed at startup.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Configuration validation with detailed error reporting
//   - File watching for payload hot-reload
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("avaegress.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.EgressConfig) {
//	    // publish the new payload
//	}, config.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	watcher.Start(ctx)
package config
