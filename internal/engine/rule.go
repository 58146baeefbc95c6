package engine

import (
	"fmt"
	"slices"

	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// Binding pairs a method selector with the strategy installed on the
// selected methods.
type Binding struct {
	Selector shape.Selector
	Strategy override.Strategy
}

// Bind creates a binding.
func Bind(sel shape.Selector, s override.Strategy) Binding {
	return Binding{Selector: sel, Strategy: s}
}

// Rule pairs a shape predicate with the bindings applied to every matching
// component. Rules are immutable once registered.
type Rule struct {
	// ID uniquely identifies the rule.
	ID string
	// Family groups rules targeting the same library.
	Family string
	// Predicate selects the components the rule applies to.
	Predicate shape.Predicate
	// Bindings are installed in order.
	Bindings []Binding
	// Reference, when set, describes the shape the rule was written
	// against. Bindings are checked against it at registration.
	Reference *shape.Descriptor
}

// Validate checks the rule is structurally complete.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &RuleError{Message: "id is required"}
	}
	if r.Predicate == nil {
		return &RuleError{Rule: r.ID, Message: "predicate is required"}
	}
	if len(r.Bindings) == 0 {
		return &RuleError{Rule: r.ID, Message: "at least one binding is required"}
	}
	for i, b := range r.Bindings {
		if b.Selector.Name == "" {
			return &RuleError{Rule: r.ID, Message: fmt.Sprintf("binding %d: method name is required", i)}
		}
		if err := b.Strategy.Validate(); err != nil {
			return &RuleError{Rule: r.ID, Message: fmt.Sprintf("binding %s: %v", b.Selector, err)}
		}
		for _, key := range b.Strategy.Keys() {
			if !override.IsKnownKey(key) {
				return &RuleError{Rule: r.ID, Message: fmt.Sprintf("binding %s: unknown payload key %q", b.Selector, key)}
			}
		}
	}
	if r.Reference != nil {
		if err := r.Reference.Validate(); err != nil {
			return &RuleError{Rule: r.ID, Message: fmt.Sprintf("reference: %v", err)}
		}
	}
	return nil
}

// Matches reports whether the rule applies to d.
func (r *Rule) Matches(d shape.Descriptor) bool {
	return r.Predicate.Matches(d)
}

// Keys returns the payload keys the rule's bindings consult, sorted.
func (r *Rule) Keys() []string {
	var keys []string
	for _, b := range r.Bindings {
		keys = append(keys, b.Strategy.Keys()...)
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// CheckReference checks every binding against the reference descriptor.
func (r *Rule) CheckReference() error {
	if r.Reference == nil {
		return nil
	}
	for _, b := range r.Bindings {
		if err := b.Strategy.CheckShape(*r.Reference, b.Selector); err != nil {
			return err
		}
	}
	return nil
}

// Apply installs every binding on h and returns the strategies applied.
// The bindings' shape requirements are checked before any is installed.
func (r *Rule) Apply(h *override.Handle, src override.Source, hooks override.Hooks) ([]string, error) {
	d := h.Descriptor()
	for _, b := range r.Bindings {
		if err := b.Strategy.CheckShape(d, b.Selector); err != nil {
			return nil, err
		}
	}

	applied := make([]string, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		if err := b.Strategy.Install(h, r.ID, b.Selector, src, hooks); err != nil {
			return applied, err
		}
		applied = append(applied, b.Selector.String()+" "+b.Strategy.String())
	}
	return applied, nil
}

// conflict returns the first pair of overlapping bindings between r and
// other, which must share a canonical predicate, or within r when other is
// r itself.
func (r *Rule) conflict(other *Rule) *ConflictError {
	for i, b := range r.Bindings {
		for j, o := range other.Bindings {
			if other == r && j <= i {
				continue
			}
			if b.Selector.Overlaps(o.Selector) {
				return &ConflictError{
					Shape:         r.Predicate.String(),
					Rule:          r.ID,
					Selector:      b.Selector.String(),
					OtherRule:     other.ID,
					OtherSelector: o.Selector.String(),
				}
			}
		}
	}
	return nil
}
