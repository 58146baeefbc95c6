// Package shape describes components by their structural shape and provides
// composable predicates over those descriptions.
//
// A Descriptor is a snapshot of a component: its qualified name, supertypes
// and capabilities, declared fields and declared methods. Predicates are pure
// functions of a descriptor and carry a canonical string form that is used to
// detect rules targeting the same shape:
//
//	p := shape.And(
//	    shape.HasCapability("TLSUpgrader"),
//	    shape.NameContains("Client"),
//	    shape.DeclaresField("TLSConfig"),
//	    shape.NotAbstract(),
//	)
//
// And and Or sort their operands, so And(a, b) and And(b, a) share one
// canonical form. CEL expressions can be used where the built-in predicates
// are not expressive enough.
package shape
