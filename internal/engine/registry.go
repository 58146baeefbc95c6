package engine

import (
	"errors"
	"maps"
	"slices"

	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/internal/override"
)

// Registry is the ordered set of rules known to an engine. It is built
// once and read-only afterwards.
type Registry struct {
	rules    []*Rule
	all      []*Rule
	disabled map[string]error
}

// NewRegistry registers rules in order.
//
// An invalid rule, a duplicate rule ID or two bindings overriding the same
// method of the same shape abort registration. A rule whose bindings do not
// fit its reference descriptor is disabled and reported by Disabled.
func NewRegistry(logger observability.Logger, rules ...*Rule) (*Registry, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Registry{disabled: make(map[string]error)}
	byShape := make(map[string][]*Rule)
	seen := make(map[string]bool, len(rules))

	for _, rule := range rules {
		if rule == nil {
			return nil, &RuleError{Message: "nil rule"}
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, &RuleError{Rule: rule.ID, Message: "duplicate rule id"}
		}
		seen[rule.ID] = true

		if c := rule.conflict(rule); c != nil {
			return nil, c
		}
		shape := rule.Predicate.String()
		for _, other := range byShape[shape] {
			if c := rule.conflict(other); c != nil {
				return nil, c
			}
		}
		byShape[shape] = append(byShape[shape], rule)
		r.all = append(r.all, rule)

		if err := rule.CheckReference(); err != nil {
			if !errors.Is(err, override.ErrBinding) {
				return nil, err
			}
			r.disabled[rule.ID] = err
			logger.Warn("rule disabled",
				observability.String("rule", rule.ID),
				observability.String("family", rule.Family),
				observability.Error(err),
			)
			continue
		}
		r.rules = append(r.rules, rule)
	}

	logger.Info("rule registry initialized",
		observability.Int("active", len(r.rules)),
		observability.Int("disabled", len(r.disabled)),
	)
	return r, nil
}

// Rules returns the active rules in registration order.
func (r *Registry) Rules() []*Rule {
	return slices.Clone(r.rules)
}

// All returns every registered rule, including disabled ones, in
// registration order.
func (r *Registry) All() []*Rule {
	return slices.Clone(r.all)
}

// Rule returns the registered rule with the given ID.
func (r *Registry) Rule(id string) (*Rule, bool) {
	for _, rule := range r.all {
		if rule.ID == id {
			return rule, true
		}
	}
	return nil, false
}

// Disabled returns the rules disabled at registration with the reason.
func (r *Registry) Disabled() map[string]error {
	return maps.Clone(r.disabled)
}

// Keys returns the payload keys consulted by the active rules, sorted.
func (r *Registry) Keys() []string {
	var keys []string
	for _, rule := range r.rules {
		keys = append(keys, rule.Keys()...)
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
