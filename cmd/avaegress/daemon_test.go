package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avaegress/internal/catalog"
	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/test/helpers"
)

// writeTestConfig writes a configuration routing through proxy and trusting
// the environment's CA, with extra appended under spec.
func writeTestConfig(t *testing.T, dir string, env *testEnv, proxy *helpers.ConnectProxy, extra string) string {
	t.Helper()

	caFile := env.certs.WriteCA(t, dir)
	return helpers.WriteConfigFile(t, dir, "avaegress.yaml", fmt.Sprintf(`apiVersion: avaegress.io/v1
kind: EgressOverride
metadata:
  name: test
spec:
  proxy:
    url: %s
  trust:
    caFile: %s
%s`, proxy.URL(), filepath.Base(caFile), extra))
}

func TestLoggerConfig(t *testing.T) {
	t.Parallel()

	configured := config.LoggingConfig{Level: "debug", Format: "console", Output: "/var/log/avaegress.log"}

	tests := []struct {
		name  string
		flags cliFlags
		cfg   config.LoggingConfig
		want  observability.LogConfig
	}{
		{
			name:  "configuration wins over defaults",
			flags: cliFlags{logLevel: "info", logFormat: "json"},
			cfg:   configured,
			want:  observability.LogConfig{Level: "debug", Format: "console", Output: "/var/log/avaegress.log"},
		},
		{
			name:  "explicit flags win over configuration",
			flags: cliFlags{logLevel: "error", logFormat: "json", logLevelSet: true, logFormatSet: true},
			cfg:   configured,
			want:  observability.LogConfig{Level: "error", Format: "json", Output: "/var/log/avaegress.log"},
		},
		{
			name:  "flags fill unset configuration",
			flags: cliFlags{logLevel: "warn", logFormat: "console"},
			cfg:   config.LoggingConfig{},
			want:  observability.LogConfig{Level: "warn", Format: "console"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, loggerConfig(tt.flags, tt.cfg))
		})
	}
}

// The reconfigured logger becomes the global one, so these tests do not run
// in parallel.

func TestReconfigureLogger_WritesConfiguredOutput(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	logFile := filepath.Join(dir, "avaegress.log")
	path := writeTestConfig(t, dir, env, env.proxy, fmt.Sprintf(`  observability:
    logging:
      level: debug
      format: json
      output: %s
`, logFile))

	cfg, err := loadAndValidateConfig(path, observability.NopLogger())
	require.NoError(t, err)

	logger, err := reconfigureLogger(observability.NopLogger(), cliFlags{logLevel: "info", logFormat: "console"}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { observability.SetGlobalLogger(observability.NopLogger()) })

	logger.Debug("debug record from the configured logger")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"debug record from the configured logger"`)
	assert.Contains(t, string(data), `"message":"logger configured"`)
}

func TestReconfigureLogger_ExplicitLevelWins(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	logFile := filepath.Join(dir, "avaegress.log")
	path := writeTestConfig(t, dir, env, env.proxy, fmt.Sprintf(`  observability:
    logging:
      level: debug
      output: %s
`, logFile))

	cfg, err := loadAndValidateConfig(path, observability.NopLogger())
	require.NoError(t, err)

	flags := cliFlags{logLevel: "warn", logFormat: "json", logLevelSet: true}
	logger, err := reconfigureLogger(observability.NopLogger(), flags, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { observability.SetGlobalLogger(observability.NopLogger()) })

	logger.Info("filtered by the command line level")
	logger.Warn("kept by the command line level")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered by the command line level")
	assert.Contains(t, string(data), "kept by the command line level")
}

func TestReconfigureLogger_BadOutputKeepsStartupLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Spec.Observability.Logging.Output = filepath.Join(t.TempDir(), "missing", "avaegress.log")

	startup := observability.NopLogger()
	logger, err := reconfigureLogger(startup, cliFlags{logLevel: "info", logFormat: "json"}, cfg)
	require.Error(t, err)
	assert.Same(t, startup, logger)
}

// counterValue sums the samples of a counter family whose labels include
// every pair in labels.
func counterValue(t *testing.T, app *application, suffix string, labels map[string]string) float64 {
	t.Helper()

	families, err := app.metrics.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), suffix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, labels) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// restoreDefaultTransport puts back the fields installation rewrites on the
// shared transport.
func restoreDefaultTransport(t *testing.T) {
	t.Helper()

	dt, ok := http.DefaultTransport.(*http.Transport)
	require.True(t, ok)
	proxy, tlsConfig := dt.Proxy, dt.TLSClientConfig
	t.Cleanup(func() {
		dt.Proxy, dt.TLSClientConfig = proxy, tlsConfig
		dt.CloseIdleConnections()
	})
}

// Watch mode rewrites the process-wide default client, so this test does
// not run in parallel.
func TestStartDaemon_InstallsDefaultClient(t *testing.T) {
	restoreDefaultTransport(t)

	env := newTestEnv(t)
	dir := t.TempDir()
	path := writeTestConfig(t, dir, env, env.proxy, "")

	cfg, err := loadAndValidateConfig(path, observability.NopLogger())
	require.NoError(t, err)
	app, err := initApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	previous := http.DefaultClient.Transport
	d := startDaemon(app, path, observability.NopLogger())
	require.NotNil(t, d.restore)
	require.NotNil(t, d.watcher)

	assert.Equal(t, 1.0, counterValue(t, app, "engine_evaluations_total", map[string]string{
		"rule":    catalog.NetHTTPTransport,
		"outcome": "transformed",
	}))

	ctx := helpers.ContextWithTimeout(t, 10*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.origin, http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := helpers.ReadResponseBody(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
	assert.True(t, env.proxy.Served(helpers.HostPort(t, env.origin)))
	assert.Positive(t, counterValue(t, app, "strategy_invocations_total", map[string]string{
		"rule": catalog.NetHTTPTransport,
	}))

	shutdown(app, d, observability.NopLogger())
	assert.Equal(t, previous, http.DefaultClient.Transport, "shutdown restores the default client")
}

func TestReloadPayload_RuleChangesWarnOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	core, logs := observer.New(zap.WarnLevel)
	app, err := initApplication(env.config(), observability.NewLoggerFromZap(zap.New(core)))
	require.NoError(t, err)

	changed := env.config()
	changed.Spec.Rules.Disabled = []string{catalog.WebsocketDialer}

	app.reloadPayload(changed)
	assert.Equal(t, 1, logs.FilterMessageSnippet("rule changes require a restart").Len())

	// The reloaded configuration is the baseline for the next reload.
	again := env.config()
	again.Spec.Rules.Disabled = []string{catalog.WebsocketDialer}
	app.reloadPayload(again)
	assert.Equal(t, 1, logs.FilterMessageSnippet("rule changes require a restart").Len())

	app.mu.Lock()
	defer app.mu.Unlock()
	assert.Same(t, again, app.config)
}

func TestInitApplication_TracingEnabled(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	env := newTestEnv(t)
	cfg := env.config()
	cfg.Spec.Observability.Tracing.Enabled = true
	cfg.ApplyDefaults()

	app, err := initApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	assert.True(t, app.tracer.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, app.tracer.Shutdown(ctx))
}
