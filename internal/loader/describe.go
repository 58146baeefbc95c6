package loader

import (
	"reflect"
	"slices"

	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// QualifiedName returns the import-path qualified name of t, e.g.
// "net/http.Transport". Pointers and containers are unwrapped to their
// element type; unnamed types fall back to their Go syntax.
func QualifiedName(t reflect.Type) string {
	t = baseType(t)
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func baseType(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan, reflect.Map:
			if t.Name() != "" {
				return t
			}
			t = t.Elem()
		default:
			return t
		}
	}
}

// Describe returns the shape of t as predicates see it.
//
// Supertypes are the qualified names of embedded types, followed
// transitively by theirs, and the registered capabilities the pointer type
// implements. Fields include unexported ones. Methods are the method set
// of the pointer type, or the interface's own methods for interfaces,
// which are reported as abstract.
func (l *Loader) Describe(t reflect.Type) shape.Descriptor {
	base := baseType(t)
	d := shape.Descriptor{
		Name:     QualifiedName(base),
		Abstract: base.Kind() == reflect.Interface,
	}

	if base.Kind() == reflect.Struct {
		d.Fields, d.Supertypes = structMembers(base, nil)
	}

	methodSet := base
	if base.Kind() != reflect.Interface {
		methodSet = reflect.PointerTo(base)
	}
	d.Methods = methodsOf(methodSet)

	for _, name := range l.caps.implementedBy(methodSet) {
		if !slices.Contains(d.Supertypes, name) {
			d.Supertypes = append(d.Supertypes, name)
		}
	}
	return d
}

// structMembers lists the field names of t and the embedded types reachable
// from it. seen guards against embedding cycles through pointers.
func structMembers(t reflect.Type, seen map[reflect.Type]bool) (fields, supertypes []string) {
	if seen == nil {
		seen = make(map[reflect.Type]bool)
	}
	seen[t] = true

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fields = append(fields, f.Name)
		if !f.Anonymous {
			continue
		}

		embedded := baseType(f.Type)
		name := QualifiedName(embedded)
		if !slices.Contains(supertypes, name) {
			supertypes = append(supertypes, name)
		}
		if embedded.Kind() != reflect.Struct || seen[embedded] {
			continue
		}
		_, inherited := structMembers(embedded, seen)
		for _, s := range inherited {
			if !slices.Contains(supertypes, s) {
				supertypes = append(supertypes, s)
			}
		}
	}
	return fields, supertypes
}

func methodsOf(t reflect.Type) []shape.Method {
	methods := make([]shape.Method, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		methods = append(methods, signature(t, t.Method(i)))
	}
	return methods
}

// signature describes m. Method types obtained from a concrete type carry
// the receiver as the first parameter; interface methods do not.
func signature(owner reflect.Type, m reflect.Method) shape.Method {
	ft := m.Type
	first := 0
	if owner.Kind() != reflect.Interface {
		first = 1
	}

	sig := shape.Method{Name: m.Name}
	for i := first; i < ft.NumIn(); i++ {
		sig.Params = append(sig.Params, typeName(ft, i))
	}
	for i := 0; i < ft.NumOut(); i++ {
		sig.Returns = append(sig.Returns, ft.Out(i).String())
	}
	return sig
}

func typeName(ft reflect.Type, in int) string {
	if ft.IsVariadic() && in == ft.NumIn()-1 {
		return "..." + ft.In(in).Elem().String()
	}
	return ft.In(in).String()
}
