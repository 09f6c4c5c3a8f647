// Package expr provides the expression substrate used by the planner.
//
// Expressions are immutable trees built from a sealed set of node types:
//
//	Literal       constant value (including an embedded remote plan)
//	Ref           reference to an attribute ($name, $^name for outer scopes)
//	Binary        arithmetic, logical and comparison operators
//	Not           logical negation
//	Aggregate     $dataset.sum($x), $dataset.count(), ...
//	NumberBucket  $x.numberBucket(size, offset)
//	TimeBucket    $t.timeBucket(unit)
//
// Expr and Value are sealed interfaces using the marker method pattern, so
// type switches over them are exhaustive within this module. A literal whose
// value is an ExternalValue carries a boxed plan; the planner packages supply
// the payload through the External interface.
//
// Every rewrite (Simplify, Substitute, Distribute in package aggregate)
// returns a new tree. Nodes are never mutated after construction, which makes
// expressions safe to share between goroutines.
//
// The JSON form ({"op": ...} records) is the serialized expression format used
// in plan specs. The canonical form (RFC 8785 key order, NFC strings) is used
// only for content-addressed identity.
package expr
