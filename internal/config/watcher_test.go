package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// validConfigYAML is a minimal valid configuration for testing
const validConfigYAML = `
apiVersion: avaegress.io/v1
kind: EgressOverride
metadata:
  name: test-egress
spec:
  proxy:
    url: http://127.0.0.1:8000
`

// invalidConfigYAML is an invalid configuration for testing error handling
const invalidConfigYAML = `
apiVersion: avaegress.io/v1
kind: EgressOverride
metadata:
  name: test-egress
spec:
  proxy:
    url: ftp://127.0.0.1:21
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, validConfigYAML)

	watcher, err := NewWatcher(configPath, func(*EgressConfig) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Stop() })

	assert.Equal(t, configPath, watcher.path)
	assert.NotNil(t, watcher.callback)
	assert.Equal(t, 100*time.Millisecond, watcher.debounceDelay)
}

func TestNewWatcher_WithOptions(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, validConfigYAML)

	logger := observability.NopLogger()
	watcher, err := NewWatcher(configPath, func(*EgressConfig) {},
		WithDebounceDelay(200*time.Millisecond),
		WithLogger(logger),
		WithErrorCallback(func(error) {}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Stop() })

	assert.Equal(t, 200*time.Millisecond, watcher.debounceDelay)
	assert.Equal(t, logger, watcher.logger)
	assert.NotNil(t, watcher.errorCallback)
}

func TestWatcher_Start(t *testing.T) {
	// Not parallel due to file system operations

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, validConfigYAML)

	var calls atomic.Int32
	watcher, err := NewWatcher(configPath, func(*EgressConfig) { calls.Add(1) },
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	assert.NoError(t, watcher.Start(ctx), "starting twice is a no-op")

	cfg := watcher.GetLastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "test-egress", cfg.Metadata.Name)
	assert.Zero(t, calls.Load(), "initial load does not invoke the callback")

	require.NoError(t, watcher.Stop())
}

func TestWatcher_Start_Errors(t *testing.T) {
	// Not parallel due to file system operations

	dir := t.TempDir()
	invalidPath := filepath.Join(dir, "invalid.yaml")
	writeConfig(t, invalidPath, invalidConfigYAML)

	for _, path := range []string{invalidPath, filepath.Join(dir, "missing.yaml")} {
		watcher, err := NewWatcher(path, func(*EgressConfig) {})
		require.NoError(t, err)
		assert.Error(t, watcher.Start(context.Background()))
		require.NoError(t, watcher.Stop())
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	// Not parallel due to file system operations

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, validConfigYAML)

	reloaded := make(chan *EgressConfig, 4)
	var failures atomic.Int32
	watcher, err := NewWatcher(configPath,
		func(cfg *EgressConfig) { reloaded <- cfg },
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(error) { failures.Add(1) }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	t.Cleanup(func() { _ = watcher.Stop() })

	writeConfig(t, configPath, `
apiVersion: avaegress.io/v1
kind: EgressOverride
metadata:
  name: test-egress
spec:
  proxy:
    url: http://127.0.0.1:9000
`)

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "http://127.0.0.1:9000", cfg.Spec.Proxy.URL)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Equal(t, "http://127.0.0.1:9000", watcher.GetLastConfig().Spec.Proxy.URL)

	writeConfig(t, configPath, invalidConfigYAML)
	require.Eventually(t, func() bool { return failures.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "http://127.0.0.1:9000", watcher.GetLastConfig().Spec.Proxy.URL,
		"invalid reloads keep the last good configuration")
}

func TestWatcher_ForceReload(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, validConfigYAML)

	var calls atomic.Int32
	watcher, err := NewWatcher(configPath, func(*EgressConfig) { calls.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Stop() })

	require.NoError(t, watcher.ForceReload())
	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, watcher.GetLastConfig())

	writeConfig(t, configPath, invalidConfigYAML)
	assert.Error(t, watcher.ForceReload())
	assert.Equal(t, int32(1), calls.Load())
}
