package shape

import (
	"slices"
	"strconv"
	"strings"
)

// Predicate is a pure, deterministic boolean test over a Descriptor.
//
// String returns a canonical form: two predicates with the same canonical
// form match exactly the same descriptors.
type Predicate interface {
	Matches(d Descriptor) bool
	String() string
}

// Named matches descriptors whose qualified name equals name.
func Named(name string) Predicate {
	return named(name)
}

// HasSupertype matches descriptors that extend or implement name.
func HasSupertype(name string) Predicate {
	return supertype(name)
}

// HasCapability is an alias of HasSupertype for registered capabilities.
func HasCapability(name string) Predicate {
	return supertype(name)
}

// NameContains matches descriptors whose simple name contains sub.
func NameContains(sub string) Predicate {
	return nameContains(sub)
}

// DeclaresField matches descriptors declaring the named field.
func DeclaresField(name string) Predicate {
	return declaresField(name)
}

// DeclaresMethod matches descriptors declaring a method selected by sel.
func DeclaresMethod(sel Selector) Predicate {
	return declaresMethod{sel: sel}
}

// NotAbstract matches descriptors with an implementation.
func NotAbstract() Predicate {
	return notAbstract{}
}

// Any matches every descriptor.
func Any() Predicate {
	return anyShape{}
}

// And matches when every child matches. And() with no children matches
// everything.
func And(ps ...Predicate) Predicate {
	return newJunction(opAnd, ps)
}

// Or matches when at least one child matches. Or() with no children matches
// nothing.
func Or(ps ...Predicate) Predicate {
	return newJunction(opOr, ps)
}

// Not negates p. A nil p is skipped the way And and Or skip nil children,
// leaving a predicate that matches everything.
func Not(p Predicate) Predicate {
	if p == nil {
		return Any()
	}
	if n, ok := p.(not); ok {
		return n.p
	}
	return not{p: p}
}

type named string

func (p named) Matches(d Descriptor) bool { return d.Name == string(p) }
func (p named) String() string            { return "named(" + strconv.Quote(string(p)) + ")" }

type supertype string

func (p supertype) Matches(d Descriptor) bool { return d.HasSupertype(string(p)) }
func (p supertype) String() string            { return "supertype(" + strconv.Quote(string(p)) + ")" }

type nameContains string

func (p nameContains) Matches(d Descriptor) bool {
	return strings.Contains(d.SimpleName(), string(p))
}
func (p nameContains) String() string { return "nameContains(" + strconv.Quote(string(p)) + ")" }

type declaresField string

func (p declaresField) Matches(d Descriptor) bool { return d.HasField(string(p)) }
func (p declaresField) String() string            { return "field(" + strconv.Quote(string(p)) + ")" }

type declaresMethod struct {
	sel Selector
}

func (p declaresMethod) Matches(d Descriptor) bool {
	for _, m := range d.Methods {
		if p.sel.Matches(m) {
			return true
		}
	}
	return false
}
func (p declaresMethod) String() string { return "method(" + strconv.Quote(p.sel.String()) + ")" }

type notAbstract struct{}

func (notAbstract) Matches(d Descriptor) bool { return !d.Abstract }
func (notAbstract) String() string            { return "notAbstract()" }

type anyShape struct{}

func (anyShape) Matches(Descriptor) bool { return true }
func (anyShape) String() string          { return "any()" }

type not struct {
	p Predicate
}

func (n not) Matches(d Descriptor) bool { return !n.p.Matches(d) }
func (n not) String() string            { return "not(" + n.p.String() + ")" }

type junctionOp string

const (
	opAnd junctionOp = "and"
	opOr  junctionOp = "or"
)

// junction is an n-ary And/Or. Children are flattened and ordered by their
// canonical form so composition is associative and commutative.
type junction struct {
	op       junctionOp
	children []Predicate
	key      string
}

func newJunction(op junctionOp, ps []Predicate) Predicate {
	children := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p == nil {
			continue
		}
		if j, ok := p.(*junction); ok && j.op == op {
			children = append(children, j.children...)
			continue
		}
		children = append(children, p)
	}

	slices.SortStableFunc(children, func(a, b Predicate) int {
		return strings.Compare(a.String(), b.String())
	})
	children = slices.CompactFunc(children, func(a, b Predicate) bool {
		return a.String() == b.String()
	})

	if len(children) == 1 {
		return children[0]
	}

	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}

	return &junction{
		op:       op,
		children: children,
		key:      string(op) + "(" + strings.Join(parts, ",") + ")",
	}
}

func (j *junction) Matches(d Descriptor) bool {
	if j.op == opAnd {
		for _, c := range j.children {
			if !c.Matches(d) {
				return false
			}
		}
		return true
	}
	for _, c := range j.children {
		if c.Matches(d) {
			return true
		}
	}
	return false
}

func (j *junction) String() string { return j.key }
