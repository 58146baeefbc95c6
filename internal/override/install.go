package override

import (
	"context"
	"errors"
	"reflect"

	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// Hooks observe intercepted calls. Both callbacks are optional.
type Hooks struct {
	// OnInvoke is called each time an interceptor runs. ctx is the context
	// carried by the call's arguments, or context.Background.
	OnInvoke func(ctx context.Context, rule string, kind Kind)
	// OnError is called when an interceptor cannot resolve its payload.
	OnError func(rule string, err error)
}

func (h Hooks) invoke(args []any, rule string, kind Kind) {
	if h.OnInvoke != nil {
		h.OnInvoke(callContext(args), rule, kind)
	}
}

// callContext returns the context a call was made with: a context.Context
// argument, or the context of an argument such as *http.Request.
func callContext(args []any) context.Context {
	for _, a := range args {
		if rv := reflect.ValueOf(a); !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
			continue
		}
		switch v := a.(type) {
		case context.Context:
			return v
		case interface{ Context() context.Context }:
			return v.Context()
		}
	}
	return context.Background()
}

func (h Hooks) fail(rule string, err error) {
	if h.OnError != nil {
		h.OnError(rule, err)
	}
}

// Install binds the strategy to the methods of h selected by sel on behalf
// of rule. Every member the strategy touches is checked, and the current
// payload must be adaptable to each overridden field and result, before any
// method is changed.
func (s Strategy) Install(h *Handle, rule string, sel shape.Selector, src Source, hooks Hooks) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := s.CheckShape(h.desc, sel); err != nil {
		return err
	}
	if err := s.checkMembers(h, sel, src); err != nil {
		return err
	}

	key := refreshKey(rule, sel)
	var (
		wrap    func(slot *methodSlot, next Func) *interceptor
		prepare func() error
	)
	switch s.Kind {
	case ReplaceReturnValue:
		if s.Wrap {
			wrap = s.wrapped(h, key, rule, src, hooks)
		} else {
			wrap = s.replaceReturn(rule, src, hooks)
		}
	case ReplaceFieldBeforeCall:
		wrap = s.fieldsBefore(h, key, rule, src, hooks)
	case ReplaceFieldAfterCall:
		wrap = s.fieldsAfter(h, key, rule, src, hooks)
	case ResetCachedState:
		wrap = s.resetCached(h, key, rule, src, hooks)
		// The live component may already hold state built from the old
		// settings; bring it up to date before the next call arrives.
		prepare = func() error {
			return h.syncLocked(key, src.Generation(), s.refresh(h, src))
		}
	}

	return h.bind(rule, sel, wrap, prepare)
}

func (s Strategy) checkMembers(h *Handle, sel shape.Selector, src Source) error {
	for _, a := range s.Assign {
		slot, ok := h.fields[a.Field]
		if !ok {
			return &BindingError{Component: h.desc.Name, Member: a.Field, Reason: "field is not addressable"}
		}
		if _, err := Resolve(src, a.Key, slot.Type()); err != nil {
			return bindingOrLookup(h, a.Field, err)
		}
	}

	if s.Reset != "" {
		if _, ok := h.resets[s.Reset]; !ok {
			return &BindingError{Component: h.desc.Name, Member: s.Reset, Reason: "reset operation is not invocable"}
		}
	}

	switch {
	case s.Kind != ReplaceReturnValue:
	case s.Wrap:
		if _, err := Resolve(src, s.Key, nil); err != nil {
			return err
		}
	default:
		for _, slot := range h.slotsMatching(sel) {
			var t reflect.Type
			if len(slot.out) > 0 {
				t = slot.out[0]
			}
			if _, err := Resolve(src, s.Key, t); err != nil {
				return bindingOrLookup(h, slot.sig.String(), err)
			}
		}
	}
	return nil
}

func bindingOrLookup(h *Handle, member string, err error) error {
	if errors.Is(err, ErrLookup) {
		return err
	}
	return &BindingError{Component: h.desc.Name, Member: member, Reason: err.Error()}
}

func refreshKey(rule string, sel shape.Selector) string {
	return rule + "/" + sel.String()
}

func (s Strategy) replaceReturn(rule string, src Source, hooks Hooks) func(*methodSlot, Func) *interceptor {
	return func(slot *methodSlot, _ Func) *interceptor {
		var t reflect.Type
		if len(slot.out) > 0 {
			t = slot.out[0]
		}
		return &interceptor{call: func(args []any) ([]any, error) {
			hooks.invoke(args, rule, s.Kind)
			v, err := Resolve(src, s.Key, t)
			if err != nil {
				hooks.fail(rule, err)
				return nil, err
			}
			results := slot.zeroResults()
			if len(results) == 0 {
				return []any{v}, nil
			}
			results[0] = v
			return results, nil
		}}
	}
}

// wrapped keeps the original body and its results. The reset operation
// runs after the call whenever the payload has changed since the last one.
func (s Strategy) wrapped(h *Handle, key, rule string, src Source, hooks Hooks) func(*methodSlot, Func) *interceptor {
	reset := h.resets[s.Reset]
	return func(_ *methodSlot, next Func) *interceptor {
		return &interceptor{
			call: func(args []any) ([]any, error) {
				hooks.invoke(args, rule, s.Kind)
				return next(args)
			},
			after: func() error {
				err := h.sync(key, src, func() error {
					if _, err := Resolve(src, s.Key, nil); err != nil {
						return err
					}
					reset()
					return nil
				})
				if err != nil {
					hooks.fail(rule, err)
				}
				return err
			},
		}
	}
}

func (s Strategy) fieldsBefore(h *Handle, key, rule string, src Source, hooks Hooks) func(*methodSlot, Func) *interceptor {
	return func(_ *methodSlot, next Func) *interceptor {
		return &interceptor{
			before: func(args []any) error {
				hooks.invoke(args, rule, s.Kind)
				err := h.sync(key, src, func() error { return h.assignLocked(s.Assign, src) })
				if err != nil {
					hooks.fail(rule, err)
				}
				return err
			},
			call: next,
		}
	}
}

func (s Strategy) fieldsAfter(h *Handle, key, rule string, src Source, hooks Hooks) func(*methodSlot, Func) *interceptor {
	return func(_ *methodSlot, next Func) *interceptor {
		return &interceptor{
			call: func(args []any) ([]any, error) {
				hooks.invoke(args, rule, s.Kind)
				return next(args)
			},
			after: func() error {
				err := h.sync(key, src, func() error { return h.assignLocked(s.Assign, src) })
				if err != nil {
					hooks.fail(rule, err)
				}
				return err
			},
		}
	}
}

func (s Strategy) resetCached(h *Handle, key, rule string, src Source, hooks Hooks) func(*methodSlot, Func) *interceptor {
	return func(_ *methodSlot, next Func) *interceptor {
		return &interceptor{
			before: func(args []any) error {
				hooks.invoke(args, rule, s.Kind)
				err := h.sync(key, src, s.refresh(h, src))
				if err != nil {
					hooks.fail(rule, err)
				}
				return err
			},
			call: next,
		}
	}
}

// refresh re-asserts the assignments and runs the reset operation.
func (s Strategy) refresh(h *Handle, src Source) func() error {
	return func() error {
		if err := h.assignLocked(s.Assign, src); err != nil {
			return err
		}
		if fn, ok := h.resets[s.Reset]; ok {
			fn()
		}
		return nil
	}
}
