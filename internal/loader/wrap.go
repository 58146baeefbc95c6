package loader

import (
	"fmt"
	"reflect"

	"github.com/vyrodovalexey/avaegress/internal/override"
)

// Wrap builds a handle over v, which must be a non-nil pointer to a struct.
//
// Exported fields become field slots, every method of the pointer type
// becomes invocable through the handle, and methods without parameters or
// results are also registered as reset operations.
func (l *Loader) Wrap(v any) (*override.Handle, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a non-nil pointer to a struct", ErrUnsupportedTarget, v)
	}

	h := override.NewHandle(l.Describe(rv.Type()), v)

	elem := rv.Elem()
	st := elem.Type()
	for i := 0; i < st.NumField(); i++ {
		if f := st.Field(i); f.IsExported() {
			h.DefineField(f.Name, &fieldSlot{v: elem.Field(i)})
		}
	}

	pt := rv.Type()
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		fn := rv.Method(i)
		sig := signature(pt, m)

		out := make([]reflect.Type, m.Type.NumOut())
		for j := range out {
			out[j] = m.Type.Out(j)
		}
		h.DefineTypedMethod(sig, out, invoker(fn))

		if len(sig.Params) == 0 && len(sig.Returns) == 0 {
			h.DefineReset(m.Name, func() { fn.Call(nil) })
		}
	}
	return h, nil
}

// fieldSlot is a settable struct field reached through reflection.
type fieldSlot struct {
	v reflect.Value
}

// Type implements override.FieldSlot.
func (s *fieldSlot) Type() reflect.Type {
	return s.v.Type()
}

// Get implements override.FieldSlot.
func (s *fieldSlot) Get() any {
	return s.v.Interface()
}

// Set implements override.FieldSlot. A nil value zeroes the field.
func (s *fieldSlot) Set(v any) error {
	if v == nil {
		s.v.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(s.v.Type()) {
		return fmt.Errorf("%w: %T is not assignable to %s", override.ErrNotAssignable, v, s.v.Type())
	}
	s.v.Set(rv)
	return nil
}

// invoker adapts a bound method value to an override.Func.
func invoker(fn reflect.Value) override.Func {
	ft := fn.Type()
	return func(args []any) ([]any, error) {
		in, err := arguments(ft, args)
		if err != nil {
			return nil, err
		}
		out := fn.Call(in)
		results := make([]any, len(out))
		for i, o := range out {
			results[i] = o.Interface()
		}
		return results, nil
	}
}

func arguments(ft reflect.Type, args []any) ([]reflect.Value, error) {
	n := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("%w: %s takes at least %d arguments, got %d", ErrInvocation, ft, n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvocation, ft, n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= n-1 {
			pt = ft.In(n - 1).Elem()
		} else {
			pt = ft.In(i)
		}

		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(a)
		switch {
		case av.Type().AssignableTo(pt):
			in[i] = av
		case av.Kind() == reflect.Func && av.Type().ConvertibleTo(pt):
			in[i] = av.Convert(pt)
		default:
			return nil, fmt.Errorf("%w: argument %d of %s: %T is not assignable to %s", ErrInvocation, i, ft, a, pt)
		}
	}
	return in, nil
}

var _ override.FieldSlot = (*fieldSlot)(nil)
