package override

import (
	"errors"
	"fmt"
)

// Sentinel errors for override operations.
var (
	// ErrBinding indicates a strategy could not locate its target member.
	ErrBinding = errors.New("override: strategy binding failed")

	// ErrLookup indicates a payload key could not be resolved.
	ErrLookup = errors.New("override: payload lookup failed")

	// ErrAlreadyBound indicates a method is already intercepted by another rule.
	ErrAlreadyBound = errors.New("override: method already bound")

	// ErrInvalidStrategy indicates a structurally invalid strategy.
	ErrInvalidStrategy = errors.New("override: invalid strategy")

	// ErrNoMethod indicates a handle has no method with the requested name.
	ErrNoMethod = errors.New("override: no such method")
)

// BindingError describes a strategy that references a method, field or
// reset operation its target component does not have, or a payload that
// cannot be adapted to the member's type.
type BindingError struct {
	Component string
	Member    string
	Reason    string
}

// Error implements the error interface.
func (e *BindingError) Error() string {
	return fmt.Sprintf("override: cannot bind %s.%s: %s", e.Component, e.Member, e.Reason)
}

// Is reports whether target matches this error type.
func (e *BindingError) Is(target error) bool {
	return target == ErrBinding
}

// LookupError describes a payload key the configuration source cannot
// resolve.
type LookupError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("override: lookup %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("override: lookup %q: key not found", e.Key)
}

// Unwrap returns the underlying error.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}

// BoundError describes an attempt to intercept a method that another rule
// already intercepts on the same handle.
type BoundError struct {
	Component string
	Method    string
	Rule      string
	BoundBy   string
}

// Error implements the error interface.
func (e *BoundError) Error() string {
	return fmt.Sprintf("override: %s.%s is bound by rule %q, refusing rule %q",
		e.Component, e.Method, e.BoundBy, e.Rule)
}

// Is reports whether target matches this error type.
func (e *BoundError) Is(target error) bool {
	return target == ErrAlreadyBound
}
