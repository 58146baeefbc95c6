package override

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// Assignment binds a field of the target component to a payload key.
type Assignment struct {
	Field string
	Key   string
}

// Assign returns an Assignment of key to field.
func Assign(field, key string) Assignment {
	return Assignment{Field: field, Key: key}
}

// Strategy describes how an intercepted method is overridden.
type Strategy struct {
	Kind Kind
	// Key is the payload returned by ReplaceReturnValue. A wrapper only
	// checks that it resolves.
	Key string
	// Assign lists the fields written by the field and reset kinds.
	Assign []Assignment
	// Reset names the operation that discards cached state.
	Reset string
	// Wrap keeps the original method and its results; Reset runs after it
	// once per payload generation.
	Wrap bool
}

// ReturnValue replaces a method's result with the payload under key.
func ReturnValue(key string) Strategy {
	return Strategy{Kind: ReplaceReturnValue, Key: key}
}

// WrappedReturnValue runs the original method and returns its results,
// then calls reset when the payload under key has changed since the last
// call.
func WrappedReturnValue(key, reset string) Strategy {
	return Strategy{Kind: ReplaceReturnValue, Key: key, Reset: reset, Wrap: true}
}

// FieldsBeforeCall overwrites fields before the original method runs.
func FieldsBeforeCall(assign ...Assignment) Strategy {
	return Strategy{Kind: ReplaceFieldBeforeCall, Assign: assign}
}

// FieldsAfterCall overwrites fields after the original method runs.
func FieldsAfterCall(assign ...Assignment) Strategy {
	return Strategy{Kind: ReplaceFieldAfterCall, Assign: assign}
}

// ResetCached re-asserts fields and calls reset once per payload generation.
func ResetCached(reset string, assign ...Assignment) Strategy {
	return Strategy{Kind: ResetCachedState, Assign: assign, Reset: reset}
}

// Validate checks the strategy's internal consistency.
func (s Strategy) Validate() error {
	switch s.Kind {
	case ReplaceReturnValue:
		if s.Key == "" {
			return fmt.Errorf("%w: %s requires a payload key", ErrInvalidStrategy, s.Kind)
		}
		if len(s.Assign) > 0 {
			return fmt.Errorf("%w: %s takes no field assignments", ErrInvalidStrategy, s.Kind)
		}
		if s.Wrap && s.Reset == "" {
			return fmt.Errorf("%w: wrapped %s requires a reset operation", ErrInvalidStrategy, s.Kind)
		}
		if !s.Wrap && s.Reset != "" {
			return fmt.Errorf("%w: %s takes a reset operation only when wrapping", ErrInvalidStrategy, s.Kind)
		}
	case ReplaceFieldBeforeCall, ReplaceFieldAfterCall:
		if len(s.Assign) == 0 {
			return fmt.Errorf("%w: %s requires at least one field assignment", ErrInvalidStrategy, s.Kind)
		}
		if s.Reset != "" {
			return fmt.Errorf("%w: %s takes no reset operation", ErrInvalidStrategy, s.Kind)
		}
	case ResetCachedState:
		if s.Reset == "" {
			return fmt.Errorf("%w: %s requires a reset operation", ErrInvalidStrategy, s.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidStrategy, int(s.Kind))
	}

	if s.Wrap && s.Kind != ReplaceReturnValue {
		return fmt.Errorf("%w: only %s can wrap the original", ErrInvalidStrategy, ReplaceReturnValue)
	}

	seen := make(map[string]bool, len(s.Assign))
	for _, a := range s.Assign {
		if a.Field == "" || a.Key == "" {
			return fmt.Errorf("%w: assignment requires field and key", ErrInvalidStrategy)
		}
		if seen[a.Field] {
			return fmt.Errorf("%w: field %q assigned twice", ErrInvalidStrategy, a.Field)
		}
		seen[a.Field] = true
	}
	return nil
}

// Keys returns the payload keys the strategy reads.
func (s Strategy) Keys() []string {
	var keys []string
	if s.Key != "" {
		keys = append(keys, s.Key)
	}
	for _, a := range s.Assign {
		keys = append(keys, a.Key)
	}
	return keys
}

// CheckShape verifies that d declares everything the strategy needs when
// bound to sel.
func (s Strategy) CheckShape(d shape.Descriptor, sel shape.Selector) error {
	methods := d.MethodsMatching(sel)
	if len(methods) == 0 {
		return &BindingError{Component: d.Name, Member: sel.String(), Reason: "no matching method"}
	}
	if s.Kind == ReplaceReturnValue && !s.Wrap {
		for _, m := range methods {
			if len(m.Returns) == 0 {
				return &BindingError{Component: d.Name, Member: m.String(), Reason: "method has no result to replace"}
			}
		}
	}
	for _, a := range s.Assign {
		if !d.HasField(a.Field) {
			return &BindingError{Component: d.Name, Member: a.Field, Reason: "no such field"}
		}
	}
	if s.Reset != "" && !d.HasMethod(s.Reset) {
		return &BindingError{Component: d.Name, Member: s.Reset, Reason: "no such reset operation"}
	}
	return nil
}

// String returns a compact description of the strategy.
func (s Strategy) String() string {
	var parts []string
	if s.Key != "" {
		parts = append(parts, "return="+s.Key)
	}
	for _, a := range s.Assign {
		parts = append(parts, a.Field+"="+a.Key)
	}
	if s.Reset != "" {
		parts = append(parts, "reset="+s.Reset)
	}
	if s.Wrap {
		parts = append(parts, "wrap")
	}
	return s.Kind.String() + "{" + strings.Join(parts, ",") + "}"
}
