// Package observability provides logging, metrics and tracing functionality.
package observability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
	Sync() error
}

// Field represents a log field.
type Field = zap.Field

// Field constructors for convenience.
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Uint64   = zap.Uint64
	Bool     = zap.Bool
	Error    = zap.Error
	Any      = zap.Any
	Duration = zap.Duration
)

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string
	Format string
	// Output is "stdout", "stderr" or a file path.
	Output string
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// zapLogger implements Logger using zap.
type zapLogger struct {
	logger *zap.Logger
}

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LogConfig) (Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &zapLogger{logger: logger}, nil
}

// openOutput resolves the output sink for the logger.
func openOutput(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // operator supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		return zapcore.AddSync(f), nil
	}
}

// NewLoggerFromZap wraps an existing zap logger.
func NewLoggerFromZap(l *zap.Logger) Logger {
	return &zapLogger{logger: l}
}

// parseLevel parses a log level string.
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}

// Debug logs a debug message.
func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, fields...)
}

// Info logs an info message.
func (l *zapLogger) Info(msg string, fields ...Field) {
	l.logger.Info(msg, fields...)
}

// Warn logs a warning message.
func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.logger.Warn(msg, fields...)
}

// Error logs an error message.
func (l *zapLogger) Error(msg string, fields ...Field) {
	l.logger.Error(msg, fields...)
}

// Fatal logs a fatal message and exits.
func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.logger.Fatal(msg, fields...)
}

// With returns a logger with additional fields.
func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

// WithContext returns a logger with context fields (engine ID, component,
// trace ID, span ID).
func (l *zapLogger) WithContext(ctx context.Context) Logger {
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// Sync flushes any buffered log entries.
func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// Context keys for logging.
type contextKey string

const (
	engineIDKey  contextKey = "engine_id"
	componentKey contextKey = "component"
	traceIDKey   contextKey = "trace_id"
	spanIDKey    contextKey = "span_id"
)

// extractContextFields extracts logging fields from context.
func extractContextFields(ctx context.Context) []Field {
	var fields []Field

	if id := EngineIDFromContext(ctx); id != "" {
		fields = append(fields, String("engine_id", id))
	}

	if component := ComponentFromContext(ctx); component != "" {
		fields = append(fields, String("component", component))
	}

	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = append(fields, String("trace_id", traceID))
	}

	if spanID := SpanIDFromContext(ctx); spanID != "" {
		fields = append(fields, String("span_id", spanID))
	}

	return fields
}

// ContextWithEngineID adds an engine instance ID to the context.
func ContextWithEngineID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, engineIDKey, id)
}

// EngineIDFromContext extracts the engine instance ID from context.
func EngineIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(engineIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithComponent adds a component name to the context.
func ContextWithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// ComponentFromContext extracts the component name from context.
func ComponentFromContext(ctx context.Context) string {
	if component, ok := ctx.Value(componentKey).(string); ok {
		return component
	}
	return ""
}

// ContextWithTraceID adds a trace ID to the context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts the trace ID from context.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// ContextWithSpanID adds a span ID to the context.
func ContextWithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// SpanIDFromContext extracts the span ID from context.
func SpanIDFromContext(ctx context.Context) string {
	if spanID, ok := ctx.Value(spanIDKey).(string); ok {
		return spanID
	}
	return ""
}

// SetGlobalLogger sets the global logger instance.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		logger, _ := NewLogger(DefaultLogConfig())
		return logger
	}
	return globalLogger
}

// L returns the global logger (shorthand).
func L() Logger {
	return GetGlobalLogger()
}

// NopLogger returns a logger that discards all output.
func NopLogger() Logger {
	return &zapLogger{logger: zap.NewNop()}
}
