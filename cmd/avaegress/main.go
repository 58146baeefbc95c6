// Package main is the entry point for the egress override daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// defaultCheckTimeout bounds a -check request.
const defaultCheckTimeout = 30 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
	listRules   bool
	checkURL    string
	watch       bool

	// logLevelSet and logFormatSet report a value given on the command
	// line or in the environment; it wins over the configuration file.
	logLevelSet  bool
	logFormatSet bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg, err := loadAndValidateConfig(flags.configPath, logger)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
	}

	logger, err = reconfigureLogger(logger, flags, cfg)
	if err != nil {
		fatalWithSync(observability.L(), "failed to apply logging configuration", observability.Error(err))
	}

	app, err := initApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize", observability.Error(err))
	}

	switch {
	case flags.listRules:
		listRules(os.Stdout, app)
	case flags.checkURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), defaultCheckTimeout)
		defer cancel()
		if err := runCheck(ctx, os.Stdout, app, flags.checkURL); err != nil {
			fatalWithSync(logger, "check failed", observability.Error(err))
		}
	case flags.watch:
		runDaemon(app, flags.configPath, logger)
	default:
		logger.Info("configuration valid",
			observability.Int("active_rules", len(app.engine.Rules())),
			observability.Int("disabled_rules", len(app.engine.Disabled())),
		)
	}
}

// parseFlags parses command line flags, falling back to the environment.
func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("avaegress", flag.ContinueOnError)

	var flags cliFlags
	fs.StringVar(&flags.configPath, "config", getEnvOrDefault("AVAEGRESS_CONFIG_PATH", "configs/avaegress.yaml"),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", getEnvOrDefault("AVAEGRESS_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", getEnvOrDefault("AVAEGRESS_LOG_FORMAT", "json"),
		"Log format (json, console)")
	fs.BoolVar(&flags.showVersion, "version", false, "Show version information")
	fs.BoolVar(&flags.listRules, "list-rules", false, "List transformer rules and exit")
	fs.StringVar(&flags.checkURL, "check", "", "Fetch URL through the egress overrides and exit")
	fs.BoolVar(&flags.watch, "watch", getEnvBool("AVAEGRESS_WATCH", false),
		"Keep running, reload the payload on configuration changes and serve metrics")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}

	flags.logLevelSet = os.Getenv("AVAEGRESS_LOG_LEVEL") != ""
	flags.logFormatSet = os.Getenv("AVAEGRESS_LOG_FORMAT") != ""
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			flags.logLevelSet = true
		case "log-format":
			flags.logFormatSet = true
		}
	})
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "avaegress version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loggerConfig merges the logging settings of cfg with the command line.
func loggerConfig(flags cliFlags, cfg config.LoggingConfig) observability.LogConfig {
	lc := observability.LogConfig{Level: cfg.Level, Format: cfg.Format, Output: cfg.Output}
	if flags.logLevelSet || lc.Level == "" {
		lc.Level = flags.logLevel
	}
	if flags.logFormatSet || lc.Format == "" {
		lc.Format = flags.logFormat
	}
	return lc
}

// reconfigureLogger replaces the startup logger with one built from the
// loaded configuration and makes it the global logger.
func reconfigureLogger(
	startup observability.Logger,
	flags cliFlags,
	cfg *config.EgressConfig,
) (observability.Logger, error) {
	lc := loggerConfig(flags, cfg.Spec.Observability.Logging)
	logger, err := observability.NewLogger(lc)
	if err != nil {
		return startup, err
	}
	_ = startup.Sync()

	observability.SetGlobalLogger(logger)
	logger.Debug("logger configured",
		observability.String("level", lc.Level),
		observability.String("format", lc.Format),
		observability.String("output", lc.Output),
	)
	return logger, nil
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) (*config.EgressConfig, error) {
	logger.Info("starting avaegress",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Metadata.Name),
		observability.String("proxy", redactedProxy(cfg.Spec.Proxy.URL)),
		observability.Int("no_proxy", len(cfg.Spec.Proxy.NoProxy)),
		observability.Int("disabled_rules", len(cfg.Spec.Rules.Disabled)),
		observability.Int("custom_rules", len(cfg.Spec.Rules.Custom)),
	)
	return cfg, nil
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
