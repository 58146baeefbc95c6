package engine

// MetricsRecorder receives engine metrics. *observability.Metrics
// implements it.
type MetricsRecorder interface {
	RecordEvaluation(rule, outcome string)
	SetRules(active, disabled int)
	RecordStrategyInvocation(rule, kind string)
}

type nopMetrics struct{}

func (nopMetrics) RecordEvaluation(string, string)         {}
func (nopMetrics) SetRules(int, int)                       {}
func (nopMetrics) RecordStrategyInvocation(string, string) {}

// NewNopMetrics returns a recorder that discards everything.
func NewNopMetrics() MetricsRecorder {
	return nopMetrics{}
}
