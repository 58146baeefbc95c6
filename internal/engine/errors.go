package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations.
var (
	// ErrConflict indicates two bindings target the same override point.
	ErrConflict = errors.New("engine: conflicting bindings")

	// ErrPredicate indicates a descriptor could not be evaluated.
	ErrPredicate = errors.New("engine: predicate evaluation failed")

	// ErrInvalidRule indicates a structurally invalid rule.
	ErrInvalidRule = errors.New("engine: invalid rule")
)

// ConflictError describes two bindings, in different rules or in the same
// rule, that would override the same method of the same component shape.
type ConflictError struct {
	Shape         string
	Rule          string
	Selector      string
	OtherRule     string
	OtherSelector string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Rule == e.OtherRule {
		return fmt.Sprintf("engine: rule %q binds overlapping methods %s and %s on %s",
			e.Rule, e.Selector, e.OtherSelector, e.Shape)
	}
	return fmt.Sprintf("engine: rule %q binding %s conflicts with rule %q binding %s on %s",
		e.Rule, e.Selector, e.OtherRule, e.OtherSelector, e.Shape)
}

// Is reports whether target matches this error type.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// PredicateError describes a descriptor whose data is malformed.
type PredicateError struct {
	Component string
	Err       error
}

// Error implements the error interface.
func (e *PredicateError) Error() string {
	return fmt.Sprintf("engine: cannot evaluate %q: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *PredicateError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *PredicateError) Is(target error) bool {
	return target == ErrPredicate
}

// RuleError describes a rule that cannot be registered.
type RuleError struct {
	Rule    string
	Message string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("engine: invalid rule: %s", e.Message)
	}
	return fmt.Sprintf("engine: invalid rule %q: %s", e.Rule, e.Message)
}

// Is reports whether target matches this error type.
func (e *RuleError) Is(target error) bool {
	return target == ErrInvalidRule
}
