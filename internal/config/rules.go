package config

import (
	"slices"

	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// Selector returns the method selector declared by the binding.
func (b BindingConfig) Selector() shape.Selector {
	sel := shape.MethodNamed(b.Method)
	if b.Params != nil {
		sel = sel.WithParams(b.Params...)
	}
	return sel.Returning(b.Returns)
}

// ToStrategy converts the binding into an override strategy. Assignments
// are ordered by field name.
func (b BindingConfig) ToStrategy() (override.Strategy, error) {
	kind, err := override.ParseKind(b.Strategy)
	if err != nil {
		return override.Strategy{}, err
	}

	fields := make([]string, 0, len(b.Assign))
	for field := range b.Assign {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	var assign []override.Assignment
	for _, field := range fields {
		assign = append(assign, override.Assign(field, b.Assign[field]))
	}

	return override.Strategy{
		Kind:   kind,
		Key:    b.Key,
		Assign: assign,
		Reset:  b.Reset,
		Wrap:   b.Wrap,
	}, nil
}
