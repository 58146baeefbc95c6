package engine

import (
	"errors"
	"fmt"
)

// OutcomeKind classifies the result of presenting a component to the
// engine.
type OutcomeKind int

const (
	// Unmatched means no active rule matched the component.
	Unmatched OutcomeKind = iota
	// Matched means rules matched during a dry-run evaluation.
	Matched
	// Transformed means at least one matching rule was applied.
	Transformed
	// Failed means rules matched but none could be applied.
	Failed
)

var outcomeNames = [...]string{
	Unmatched:   "unmatched",
	Matched:     "matched",
	Transformed: "transformed",
	Failed:      "failed",
}

// String returns the lower-case outcome name.
func (k OutcomeKind) String() string {
	if k < 0 || int(k) >= len(outcomeNames) {
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
	return outcomeNames[k]
}

// Failure records why a rule could not be applied.
type Failure struct {
	Rule string
	Err  error
}

// Outcome is the result of one evaluation. It is emitted to the sink and
// not retained by the engine.
type Outcome struct {
	EngineID   string
	Component  string
	Kind       OutcomeKind
	Rules      []string
	Strategies []string
	Failures   []Failure
}

// Err joins every failure reason, or returns nil.
func (o Outcome) Err() error {
	if len(o.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(o.Failures))
	for _, f := range o.Failures {
		if f.Rule == "" {
			errs = append(errs, f.Err)
			continue
		}
		errs = append(errs, fmt.Errorf("rule %s: %w", f.Rule, f.Err))
	}
	return errors.Join(errs...)
}
