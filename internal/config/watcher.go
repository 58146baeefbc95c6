package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// ConfigCallback is called with each successfully reloaded configuration.
type ConfigCallback func(*EgressConfig)

// ErrorCallback is called when an error occurs during config reload.
type ErrorCallback func(error)

// Watcher watches the configuration file and reports validated reloads.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      ConfigCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration
	lastConfig    *EgressConfig
	mu            sync.RWMutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a new configuration watcher.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		debounceDelay: 100 * time.Millisecond,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the configuration once and begins watching for changes.
// The initial configuration is not passed to the callback.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	config, err := w.load()
	if err != nil {
		return err
	}

	// The directory is watched so editors that replace the file are seen.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastConfig = config
	w.running = true
	w.mu.Unlock()

	w.logger.Info("started watching configuration file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)

	return nil
}

// Stop stops watching the configuration file.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// GetLastConfig returns the last successfully loaded configuration.
func (w *Watcher) GetLastConfig() *EgressConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastConfig
}

// watch is the main watch loop.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			debounceTimer, debounceCh = w.handleFileEvent(event, debounceTimer, debounceCh)

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.handleError("config watcher error", err)
		}
	}
}

// handleFileEvent processes a file system event and returns updated debounce timer.
func (w *Watcher) handleFileEvent(
	event fsnotify.Event,
	debounceTimer *time.Timer,
	debounceCh <-chan time.Time,
) (timer *time.Timer, ch <-chan time.Time) {
	if filepath.Clean(event.Name) != w.path {
		return debounceTimer, debounceCh
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return debounceTimer, debounceCh
	}

	w.logger.Debug("config file changed",
		observability.String("path", event.Name),
		observability.String("op", event.Op.String()),
	)

	if debounceTimer != nil {
		debounceTimer.Stop()
	}
	debounceTimer = time.NewTimer(w.debounceDelay)
	return debounceTimer, debounceTimer.C
}

// handleError logs err and forwards it to the error callback.
func (w *Watcher) handleError(msg string, err error) {
	w.logger.Error(msg, observability.Error(err))
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

// load reads and validates the configuration file.
func (w *Watcher) load() (*EgressConfig, error) {
	config, err := LoadConfig(w.path)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// reload attempts to reload the configuration. Invalid configurations are
// reported and the last good configuration stays in effect.
func (w *Watcher) reload() {
	w.logger.Info("reloading configuration",
		observability.String("path", w.path),
	)

	config, err := w.load()
	if err != nil {
		w.handleError("configuration reload failed", err)
		return
	}

	w.mu.Lock()
	w.lastConfig = config
	w.mu.Unlock()

	w.logger.Info("configuration reloaded successfully")

	if w.callback != nil {
		w.callback(config)
	}
}

// ForceReload forces an immediate configuration reload.
func (w *Watcher) ForceReload() error {
	config, err := w.load()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lastConfig = config
	w.mu.Unlock()

	if w.callback != nil {
		w.callback(config)
	}

	return nil
}
