package engine

import (
	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// Sink receives one record per evaluation.
type Sink interface {
	Record(Outcome)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Outcome)

// Record implements Sink.
func (f SinkFunc) Record(o Outcome) {
	f(o)
}

// LogSink writes outcomes to a logger. Transformed components are logged at
// info level, failures at warn level and everything else at debug level.
type LogSink struct {
	logger observability.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(o Outcome) {
	fields := []observability.Field{
		observability.String("engine_id", o.EngineID),
		observability.String("component", o.Component),
		observability.String("outcome", o.Kind.String()),
	}
	if len(o.Rules) > 0 {
		fields = append(fields, observability.Strings("rules", o.Rules))
	}
	if len(o.Strategies) > 0 {
		fields = append(fields, observability.Strings("strategies", o.Strategies))
	}
	if err := o.Err(); err != nil {
		fields = append(fields, observability.Error(err))
	}

	switch {
	case o.Kind == Failed:
		s.logger.Warn("component override failed", fields...)
	case o.Kind == Transformed && len(o.Failures) > 0:
		s.logger.Warn("component partially transformed", fields...)
	case o.Kind == Transformed:
		s.logger.Info("component transformed", fields...)
	default:
		s.logger.Debug("component evaluated", fields...)
	}
}

type nopSink struct{}

func (nopSink) Record(Outcome) {}

var (
	_ Sink = SinkFunc(nil)
	_ Sink = (*LogSink)(nil)
)
