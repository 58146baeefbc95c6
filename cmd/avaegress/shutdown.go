package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

// daemon is the running state of watch mode.
type daemon struct {
	cancel  context.CancelFunc
	watcher *config.Watcher
	restore func()
}

// runDaemon routes the default HTTP client through the overrides, serves
// metrics and republishes the payload on configuration changes until a
// shutdown signal arrives.
func runDaemon(app *application, configPath string, logger observability.Logger) {
	d := startDaemon(app, configPath, logger)
	waitForShutdown(app, d, logger)
}

// startDaemon starts everything watch mode runs. Failing to install on the
// default client is logged; the payload is still kept current for the
// health checks.
func startDaemon(app *application, configPath string, logger observability.Logger) *daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &daemon{cancel: cancel}

	restore, out, err := app.loader.InstallDefault(app.engine)
	if err != nil {
		logger.Error("failed to install egress overrides on the default HTTP client", observability.Error(err))
	} else {
		d.restore = restore
		if out.Kind != engine.Transformed {
			logger.Warn("default HTTP transport was not transformed",
				observability.String("outcome", out.Kind.String()),
			)
		}
	}

	startMetricsServerIfEnabled(app)
	d.watcher = startConfigWatcher(ctx, app, configPath, logger)
	return d
}

// startConfigWatcher starts watching the configuration file. A watcher that
// cannot start is logged and the daemon keeps the startup payload.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, app.reloadPayload,
		config.WithLogger(logger),
		config.WithErrorCallback(func(err error) {
			logger.Error("configuration watcher error", observability.Error(err))
		}),
	)
	if err != nil {
		logger.Error("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Error("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown.
func waitForShutdown(app *application, d *daemon, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	shutdown(app, d, logger)
}

// shutdown restores the default HTTP client, then stops the watcher, the
// metrics server and the tracer.
func shutdown(app *application, d *daemon, logger observability.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.restore != nil {
		d.restore()
	}
	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if app.tracer != nil {
		if err := app.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}

	logger.Info("avaegress stopped")
}
