package override

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotAssignable indicates a payload value cannot be adapted to the type
// of the member it overrides.
var ErrNotAssignable = errors.New("override: payload not assignable")

// Source is the configuration collaborator supplying override payloads.
// Lookup must return a *LookupError for unknown keys. Generation changes
// whenever any payload value changes.
type Source interface {
	Lookup(key string) (any, error)
	Generation() uint64
}

// Adapter is implemented by payloads that can present themselves as other
// types, for example a proxy selector presenting itself as a dial function.
type Adapter interface {
	Adapt(t reflect.Type) (any, bool)
}

// Resolve looks up key and adapts the payload to t. A nil t returns the
// payload unchanged.
func Resolve(src Source, key string, t reflect.Type) (any, error) {
	v, err := src.Lookup(key)
	if err != nil {
		var le *LookupError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LookupError{Key: key, Err: err}
	}
	if t == nil {
		return v, nil
	}

	out, ok := adapt(v, t)
	if !ok {
		return nil, fmt.Errorf("%w: %T for key %q cannot be used as %s", ErrNotAssignable, v, key, t)
	}
	return out, nil
}

// adapt converts v to a value assignable to t.
func adapt(v any, t reflect.Type) (any, bool) {
	if v == nil {
		return nil, false
	}
	if out, ok := exact(v, t); ok {
		return out, true
	}

	a, ok := v.(Adapter)
	if !ok {
		return nil, false
	}
	out, ok := a.Adapt(t)
	if !ok || out == nil {
		return nil, false
	}
	return exact(out, t)
}

// exact returns v with dynamic type t when v is assignable to t. Unnamed
// function values are converted so callers can assert the named type.
func exact(v any, t reflect.Type) (any, bool) {
	vt := reflect.TypeOf(v)
	switch {
	case vt == t:
		return v, true
	case t.Kind() == reflect.Interface:
		return v, vt.Implements(t)
	case vt.AssignableTo(t), vt.Kind() == reflect.Func && vt.ConvertibleTo(t):
		return reflect.ValueOf(v).Convert(t).Interface(), true
	default:
		return nil, false
	}
}
