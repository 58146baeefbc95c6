package loader

import (
	"errors"
)

// Sentinel errors for loader operations.
var (
	// ErrUnsupportedTarget indicates a value the loader cannot wrap.
	ErrUnsupportedTarget = errors.New("loader: unsupported target")

	// ErrCapabilityConflict indicates a capability name registered with two
	// different interface types.
	ErrCapabilityConflict = errors.New("loader: capability already registered")

	// ErrInvocation indicates a reflective call with arguments the method
	// does not accept.
	ErrInvocation = errors.New("loader: invalid invocation")

	// ErrUnexpectedResult indicates a method returned values of unexpected
	// types.
	ErrUnexpectedResult = errors.New("loader: unexpected result")
)
