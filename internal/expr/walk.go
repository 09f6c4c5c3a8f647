package expr

import "math"

// Equal reports whether two expressions are structurally equal.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Literal:
		bv, ok := b.(Literal)
		return ok && ValueEqual(av.Value, bv.Value)
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.Name == bv.Name && av.Nest == bv.Nest
	case Binary:
		bv, ok := b.(Binary)
		return ok && av.Op == bv.Op && Equal(av.LHS, bv.LHS) && Equal(av.RHS, bv.RHS)
	case Not:
		bv, ok := b.(Not)
		return ok && Equal(av.Operand, bv.Operand)
	case Aggregate:
		bv, ok := b.(Aggregate)
		return ok && av.Kind == bv.Kind && av.Quantile == bv.Quantile &&
			Equal(av.Dataset, bv.Dataset) && Equal(av.Operand, bv.Operand)
	case NumberBucket:
		bv, ok := b.(NumberBucket)
		return ok && av.Size == bv.Size && av.Offset == bv.Offset && Equal(av.Operand, bv.Operand)
	case TimeBucket:
		bv, ok := b.(TimeBucket)
		return ok && av.Unit == bv.Unit && Equal(av.Operand, bv.Operand)
	default:
		return false
	}
}

// Resolved reports whether e has no free references (no Ref with Nest > 0).
func Resolved(e Expr) bool {
	resolved := true
	Walk(e, func(n Expr) bool {
		if r, ok := n.(Ref); ok && r.Nest > 0 {
			resolved = false
		}
		return resolved
	})
	return resolved
}

// Walk visits e and its children depth first. Returning false from fn stops
// descent into the children of the current node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case Binary:
		Walk(n.LHS, fn)
		Walk(n.RHS, fn)
	case Not:
		Walk(n.Operand, fn)
	case Aggregate:
		Walk(n.Dataset, fn)
		Walk(n.Operand, fn)
	case NumberBucket:
		Walk(n.Operand, fn)
	case TimeBucket:
		Walk(n.Operand, fn)
	}
}

// RefNames returns the distinct names referenced at nest 0, in first-seen
// order.
func RefNames(e Expr) []string {
	seen := map[string]bool{}
	var names []string
	Walk(e, func(n Expr) bool {
		if r, ok := n.(Ref); ok && r.Nest == 0 && !seen[r.Name] {
			seen[r.Name] = true
			names = append(names, r.Name)
		}
		return true
	})
	return names
}

// Substitute rewrites e top-down. When fn returns (replacement, true) the
// node is replaced and its children are not visited.
func Substitute(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if e == nil {
		return nil
	}
	if out, ok := fn(e); ok {
		return out
	}
	switch n := e.(type) {
	case Binary:
		return Binary{Op: n.Op, LHS: Substitute(n.LHS, fn), RHS: Substitute(n.RHS, fn)}
	case Not:
		return Not{Operand: Substitute(n.Operand, fn)}
	case Aggregate:
		n.Dataset = Substitute(n.Dataset, fn)
		n.Operand = Substitute(n.Operand, fn)
		return n
	case NumberBucket:
		n.Operand = Substitute(n.Operand, fn)
		return n
	case TimeBucket:
		n.Operand = Substitute(n.Operand, fn)
		return n
	default:
		return e
	}
}

// SubstituteAggregates replaces every maximal aggregate sub-expression of e
// with the result of fn.
func SubstituteAggregates(e Expr, fn func(Aggregate) Expr) Expr {
	return Substitute(e, func(n Expr) (Expr, bool) {
		if agg, ok := n.(Aggregate); ok {
			return fn(agg), true
		}
		return nil, false
	})
}

// SubstituteRefs replaces nest-0 references found in lookup.
func SubstituteRefs(e Expr, lookup func(name string) (Expr, bool)) Expr {
	return Substitute(e, func(n Expr) (Expr, bool) {
		if r, ok := n.(Ref); ok && r.Nest == 0 {
			return lookup(r.Name)
		}
		return nil, false
	})
}

// ContainsAggregate reports whether e has an aggregate anywhere in it.
func ContainsAggregate(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(Aggregate); ok {
			found = true
		}
		return !found
	})
	return found
}

// Simplify folds constants and removes identities, bottom-up.
func Simplify(e Expr) Expr {
	switch n := e.(type) {
	case Binary:
		return simplifyBinary(Binary{Op: n.Op, LHS: Simplify(n.LHS), RHS: Simplify(n.RHS)})
	case Not:
		operand := Simplify(n.Operand)
		switch o := operand.(type) {
		case Literal:
			if b, ok := o.Value.(Bool); ok {
				return Lit(!b)
			}
		case Not:
			return o.Operand
		}
		return Not{Operand: operand}
	case Aggregate:
		n.Dataset = Simplify(n.Dataset)
		if n.Operand != nil {
			n.Operand = Simplify(n.Operand)
		}
		return n
	case NumberBucket:
		n.Operand = Simplify(n.Operand)
		return n
	case TimeBucket:
		n.Operand = Simplify(n.Operand)
		return n
	default:
		return e
	}
}

func simplifyBinary(b Binary) Expr {
	switch {
	case b.Op == OpAnd:
		return simplifyAnd(b)
	case b.Op == OpOr:
		switch {
		case Equal(b.LHS, True) || Equal(b.RHS, True):
			return True
		case Equal(b.LHS, False):
			return b.RHS
		case Equal(b.RHS, False):
			return b.LHS
		}
		return b
	case b.Op.IsArithmetic():
		return simplifyArithmetic(b)
	case b.Op == OpIs:
		l, lok := b.LHS.(Literal)
		r, rok := b.RHS.(Literal)
		if lok && rok && !isExternal(l.Value) && !isExternal(r.Value) {
			return Lit(Bool(ValueEqual(l.Value, r.Value)))
		}
		return b
	default:
		return b
	}
}

func isExternal(v Value) bool {
	_, ok := v.(ExternalValue)
	return ok
}

// simplifyAnd flattens the conjunction, drops True and duplicate conjuncts,
// and collapses to False when any conjunct is False.
func simplifyAnd(b Binary) Expr {
	var conjuncts []Expr
	var collect func(Expr)
	collect = func(e Expr) {
		if c, ok := e.(Binary); ok && c.Op == OpAnd {
			collect(c.LHS)
			collect(c.RHS)
			return
		}
		conjuncts = append(conjuncts, e)
	}
	collect(b)

	var kept []Expr
	for _, c := range conjuncts {
		if Equal(c, False) {
			return False
		}
		if Equal(c, True) {
			continue
		}
		dup := false
		for _, k := range kept {
			if Equal(k, c) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return And(kept...)
}

func simplifyArithmetic(b Binary) Expr {
	lv, lok := numberOf(b.LHS)
	rv, rok := numberOf(b.RHS)
	if lok && rok {
		switch b.Op {
		case OpAdd:
			return Num(lv + rv)
		case OpSubtract:
			return Num(lv - rv)
		case OpMultiply:
			return Num(lv * rv)
		case OpDivide:
			if rv != 0 {
				return Num(lv / rv)
			}
			return b
		}
	}
	switch b.Op {
	case OpAdd:
		if lok && lv == 0 {
			return b.RHS
		}
		if rok && rv == 0 {
			return b.LHS
		}
	case OpSubtract:
		if rok && rv == 0 {
			return b.LHS
		}
	case OpMultiply:
		if (lok && lv == 0) || (rok && rv == 0) {
			return Zero
		}
		if lok && lv == 1 {
			return b.RHS
		}
		if rok && rv == 1 {
			return b.LHS
		}
	case OpDivide:
		if rok && rv == 1 {
			return b.LHS
		}
	}
	return b
}

func numberOf(e Expr) (float64, bool) {
	l, ok := e.(Literal)
	if !ok {
		return 0, false
	}
	n, ok := l.Value.(Number)
	if !ok || math.IsNaN(float64(n)) {
		return 0, false
	}
	return float64(n), true
}

// NumberOf returns the numeric value of a number literal.
func NumberOf(e Expr) (float64, bool) { return numberOf(e) }
