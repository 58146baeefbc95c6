package shape

import (
	"slices"
	"strings"
)

// Selector identifies one or more methods by name, optionally narrowed by
// parameter types and by the first result type.
//
// A nil Params list selects any parameter list; an empty non-nil list selects
// only methods without parameters. An empty Returns selects any result.
type Selector struct {
	Name    string
	Params  []string
	Returns string
}

// MethodNamed selects every method with the given name.
func MethodNamed(name string) Selector {
	return Selector{Name: name}
}

// WithParams narrows the selector to an exact parameter list.
func (s Selector) WithParams(params ...string) Selector {
	if params == nil {
		params = []string{}
	}
	s.Params = params
	return s
}

// Returning narrows the selector to methods whose first result has type t.
func (s Selector) Returning(t string) Selector {
	s.Returns = t
	return s
}

// Matches reports whether m is selected.
func (s Selector) Matches(m Method) bool {
	if s.Name != m.Name {
		return false
	}
	if s.Params != nil && !slices.Equal(s.Params, m.Params) {
		return false
	}
	if s.Returns != "" && (len(m.Returns) == 0 || m.Returns[0] != s.Returns) {
		return false
	}
	return true
}

// Overlaps reports whether some method could be selected by both s and o.
func (s Selector) Overlaps(o Selector) bool {
	if s.Name != o.Name {
		return false
	}
	if s.Params != nil && o.Params != nil && !slices.Equal(s.Params, o.Params) {
		return false
	}
	if s.Returns != "" && o.Returns != "" && s.Returns != o.Returns {
		return false
	}
	return true
}

// String returns the canonical form of the selector.
func (s Selector) String() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	if s.Params == nil {
		sb.WriteString("(*)")
	} else {
		sb.WriteByte('(')
		sb.WriteString(strings.Join(s.Params, ","))
		sb.WriteByte(')')
	}
	if s.Returns != "" {
		sb.WriteString("->")
		sb.WriteString(s.Returns)
	}
	return sb.String()
}
