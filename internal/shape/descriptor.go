package shape

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMalformedDescriptor is returned when a descriptor cannot be evaluated.
var ErrMalformedDescriptor = errors.New("shape: malformed descriptor")

// Method describes one declared method: its name, parameter type names and
// result type names.
type Method struct {
	Name    string
	Params  []string
	Returns []string
}

// String renders the method as name(params) results.
func (m Method) String() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(m.Params, ", "))
	sb.WriteByte(')')
	switch len(m.Returns) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(m.Returns[0])
	default:
		sb.WriteString(" (")
		sb.WriteString(strings.Join(m.Returns, ", "))
		sb.WriteByte(')')
	}
	return sb.String()
}

// Descriptor is an immutable, introspectable summary of a component's shape.
type Descriptor struct {
	// Name is the qualified component name, e.g. "net/http.Transport".
	Name string
	// Supertypes holds embedded types and capabilities, transitively.
	Supertypes []string
	// Fields holds declared field names.
	Fields []string
	// Methods holds declared methods.
	Methods []Method
	// Abstract is set for shapes without an implementation (interfaces).
	Abstract bool
}

// SimpleName returns the unqualified component name.
func (d Descriptor) SimpleName() string {
	name := d.Name
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// HasSupertype reports whether name is among the descriptor's supertypes.
func (d Descriptor) HasSupertype(name string) bool {
	return slices.Contains(d.Supertypes, name)
}

// HasField reports whether the descriptor declares the named field.
func (d Descriptor) HasField(name string) bool {
	return slices.Contains(d.Fields, name)
}

// HasMethod reports whether the descriptor declares the named method with
// any signature.
func (d Descriptor) HasMethod(name string) bool {
	for _, m := range d.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

// MethodsMatching returns the declared methods selected by sel.
func (d Descriptor) MethodsMatching(sel Selector) []Method {
	var out []Method
	for _, m := range d.Methods {
		if sel.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// Validate reports whether the descriptor can be evaluated by predicates.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedDescriptor)
	}
	for i, f := range d.Fields {
		if f == "" {
			return fmt.Errorf("%w: %s: empty field name at index %d", ErrMalformedDescriptor, d.Name, i)
		}
	}
	for i, s := range d.Supertypes {
		if s == "" {
			return fmt.Errorf("%w: %s: empty supertype at index %d", ErrMalformedDescriptor, d.Name, i)
		}
	}
	for i, m := range d.Methods {
		if m.Name == "" {
			return fmt.Errorf("%w: %s: unnamed method at index %d", ErrMalformedDescriptor, d.Name, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	out := Descriptor{
		Name:       d.Name,
		Supertypes: slices.Clone(d.Supertypes),
		Fields:     slices.Clone(d.Fields),
		Abstract:   d.Abstract,
	}
	if d.Methods != nil {
		out.Methods = make([]Method, len(d.Methods))
		for i, m := range d.Methods {
			out.Methods[i] = Method{
				Name:    m.Name,
				Params:  slices.Clone(m.Params),
				Returns: slices.Clone(m.Returns),
			}
		}
	}
	return out
}
