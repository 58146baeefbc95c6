package override

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// Func is the invocable body of a handle method.
type Func func(args []any) ([]any, error)

// FieldSlot is an addressable field of a component.
type FieldSlot interface {
	// Type returns the static type of the field, or nil when unknown.
	Type() reflect.Type
	Get() any
	Set(v any) error
}

// interceptor is the effective body of one method. before and after run
// outside the call lock so they may take the write side to rewrite the live
// component; call runs under the read side.
type interceptor struct {
	before func(args []any) error
	call   Func
	after  func() error
}

// methodSlot holds the effective body of one method. current is swapped
// atomically so looking it up never takes the handle lock.
type methodSlot struct {
	sig      shape.Method
	out      []reflect.Type
	original Func
	current  atomic.Pointer[interceptor]

	// guarded by Handle.mu
	boundBy string
}

// zeroResults returns the zero value of each declared result type.
func (s *methodSlot) zeroResults() []any {
	results := make([]any, len(s.out))
	for i, t := range s.out {
		results[i] = reflect.Zero(t).Interface()
	}
	return results
}

// Handle is a mutable view of one live component: its descriptor, field
// slots, invocable methods and reset operations. Strategies installed on a
// handle stay in effect for the handle's lifetime.
//
// Fields, methods and resets are defined while the handle is built and must
// not be added once the handle is shared.
//
// Calls through the handle hold the read side of callMu for their whole
// duration. Writes to the live component take the write side, so a field
// is never rewritten while a call might be reading it.
type Handle struct {
	desc    shape.Descriptor
	target  any
	fields  map[string]FieldSlot
	methods []*methodSlot
	resets  map[string]func()

	callMu sync.RWMutex

	// mu guards boundBy and generations. When both locks are needed callMu
	// is taken first.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewHandle creates a handle for target described by desc.
func NewHandle(desc shape.Descriptor, target any) *Handle {
	return &Handle{
		desc:        desc,
		target:      target,
		fields:      make(map[string]FieldSlot),
		resets:      make(map[string]func()),
		generations: make(map[string]uint64),
	}
}

// DefineField registers an addressable field.
func (h *Handle) DefineField(name string, slot FieldSlot) *Handle {
	h.fields[name] = slot
	return h
}

// DefineMethod registers an invocable method with untyped results.
func (h *Handle) DefineMethod(sig shape.Method, fn Func) *Handle {
	return h.DefineTypedMethod(sig, nil, fn)
}

// DefineTypedMethod registers an invocable method whose result types are
// known. Result types are used to adapt replaced return values.
func (h *Handle) DefineTypedMethod(sig shape.Method, out []reflect.Type, fn Func) *Handle {
	slot := &methodSlot{sig: sig, out: out, original: fn}
	slot.current.Store(&interceptor{call: fn})
	h.methods = append(h.methods, slot)
	return h
}

// DefineReset registers a named reset operation.
func (h *Handle) DefineReset(name string, fn func()) *Handle {
	h.resets[name] = fn
	return h
}

// Descriptor returns the component descriptor. Callers must not modify it.
func (h *Handle) Descriptor() shape.Descriptor {
	return h.desc
}

// Name returns the qualified component name.
func (h *Handle) Name() string {
	return h.desc.Name
}

// Target returns the live component behind the handle.
func (h *Handle) Target() any {
	return h.target
}

// Field returns the current value of the named field.
func (h *Handle) Field(name string) (any, bool) {
	slot, ok := h.fields[name]
	if !ok {
		return nil, false
	}
	h.callMu.RLock()
	defer h.callMu.RUnlock()
	return slot.Get(), true
}

// SetField writes the named field. Overrides bound to the handle are
// re-asserted on the next call.
func (h *Handle) SetField(name string, v any) error {
	slot, ok := h.fields[name]
	if !ok {
		return &BindingError{Component: h.desc.Name, Member: name, Reason: "no such field"}
	}
	h.callMu.Lock()
	defer h.callMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := slot.Set(v); err != nil {
		return err
	}
	clear(h.generations)
	return nil
}

// Invoke calls the effective body of the named method. When several methods
// share the name, the first one declaring len(args) parameters is used.
func (h *Handle) Invoke(name string, args ...any) ([]any, error) {
	slot := h.lookup(name, len(args))
	if slot == nil {
		return nil, fmt.Errorf("%w: %s.%s/%d", ErrNoMethod, h.desc.Name, name, len(args))
	}
	ic := slot.current.Load()
	if ic.before != nil {
		if err := ic.before(args); err != nil {
			return nil, err
		}
	}
	results, err := h.call(ic.call, args)
	if ic.after != nil {
		if afterErr := ic.after(); afterErr != nil && err == nil {
			err = afterErr
		}
	}
	return results, err
}

func (h *Handle) call(fn Func, args []any) ([]any, error) {
	h.callMu.RLock()
	defer h.callMu.RUnlock()
	return fn(args)
}

// Reset runs the named reset operation.
func (h *Handle) Reset(name string) error {
	fn, ok := h.resets[name]
	if !ok {
		return &BindingError{Component: h.desc.Name, Member: name, Reason: "no such reset operation"}
	}
	h.callMu.Lock()
	defer h.callMu.Unlock()
	fn()
	return nil
}

// BoundRule returns the rule intercepting methods selected by sel.
func (h *Handle) BoundRule(sel shape.Selector) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, slot := range h.methods {
		if sel.Matches(slot.sig) && slot.boundBy != "" {
			return slot.boundBy, true
		}
	}
	return "", false
}

func (h *Handle) lookup(name string, arity int) *methodSlot {
	var fallback *methodSlot
	for _, slot := range h.methods {
		if slot.sig.Name != name {
			continue
		}
		if len(slot.sig.Params) == arity {
			return slot
		}
		if fallback == nil {
			fallback = slot
		}
	}
	return fallback
}

func (h *Handle) slotsMatching(sel shape.Selector) []*methodSlot {
	var out []*methodSlot
	for _, slot := range h.methods {
		if sel.Matches(slot.sig) {
			out = append(out, slot)
		}
	}
	return out
}

// bind installs an interceptor built by wrap on every method selected by
// sel. Re-binding by the same rule is a no-op; binding a method held by a
// different rule fails without changing any method.
//
// When prepare is set it runs under the write lock once the binding is
// known to succeed and before any interceptor is stored; if it fails
// nothing is bound.
func (h *Handle) bind(rule string, sel shape.Selector, wrap func(slot *methodSlot, next Func) *interceptor, prepare func() error) error {
	h.callMu.Lock()
	defer h.callMu.Unlock()

	pending, err := h.pending(rule, sel)
	if err != nil || len(pending) == 0 {
		return err
	}

	if prepare != nil {
		if err := prepare(); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, slot := range pending {
		slot.current.Store(wrap(slot, slot.current.Load().call))
		slot.boundBy = rule
	}
	return nil
}

// pending returns the methods selected by sel that rule has yet to bind.
func (h *Handle) pending(rule string, sel shape.Selector) ([]*methodSlot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	slots := h.slotsMatching(sel)
	if len(slots) == 0 {
		return nil, &BindingError{Component: h.desc.Name, Member: sel.String(), Reason: "no invocable method"}
	}

	pending := slots[:0:0]
	for _, slot := range slots {
		switch slot.boundBy {
		case "":
			pending = append(pending, slot)
		case rule:
		default:
			return nil, &BoundError{Component: h.desc.Name, Method: slot.sig.String(), Rule: rule, BoundBy: slot.boundBy}
		}
	}
	return pending, nil
}

// assignLocked writes every assignment from src. Callers hold the write
// side of callMu.
func (h *Handle) assignLocked(assign []Assignment, src Source) error {
	for _, a := range assign {
		slot := h.fields[a.Field]
		v, err := Resolve(src, a.Key, slot.Type())
		if err != nil {
			return err
		}
		if err := slot.Set(v); err != nil {
			return fmt.Errorf("override: set %s.%s: %w", h.desc.Name, a.Field, err)
		}
	}
	return nil
}

// applied reports whether gen was the last generation synced under key.
func (h *Handle) applied(key string, gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	applied, ok := h.generations[key]
	return ok && applied == gen
}

// sync runs apply under the write lock when the payload generation
// differs from the one last synced under key. Calls made while the
// generation is unchanged only read.
func (h *Handle) sync(key string, src Source, apply func() error) error {
	gen := src.Generation()
	if h.applied(key, gen) {
		return nil
	}

	h.callMu.Lock()
	defer h.callMu.Unlock()
	return h.syncLocked(key, gen, apply)
}

// syncLocked is sync for callers holding the write side of callMu.
func (h *Handle) syncLocked(key string, gen uint64, apply func() error) error {
	if h.applied(key, gen) {
		return nil
	}
	if err := apply(); err != nil {
		return err
	}
	h.mu.Lock()
	h.generations[key] = gen
	h.mu.Unlock()
	return nil
}

// Var is a FieldSlot backed by an in-memory value.
type Var struct {
	mu  sync.RWMutex
	typ reflect.Type
	v   any
}

// NewVar creates a slot of type typ holding initial. A nil typ accepts any
// value.
func NewVar(typ reflect.Type, initial any) *Var {
	return &Var{typ: typ, v: initial}
}

// Type implements FieldSlot.
func (f *Var) Type() reflect.Type {
	return f.typ
}

// Get implements FieldSlot.
func (f *Var) Get() any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.v
}

// Set implements FieldSlot.
func (f *Var) Set(v any) error {
	if f.typ != nil && v != nil && !reflect.TypeOf(v).AssignableTo(f.typ) {
		return fmt.Errorf("%w: %T is not assignable to %s", ErrNotAssignable, v, f.typ)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v = v
	return nil
}

var _ FieldSlot = (*Var)(nil)
