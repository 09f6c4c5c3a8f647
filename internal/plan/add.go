package plan

import (
	"fmt"

	"github.com/roach88/fedplan/internal/aggregate"
	"github.com/roach88/fedplan/internal/expr"
)

// Add offers an operation to the plan.
//
// It returns the new plan on success. An operation this backend or mode
// cannot represent returns a *Rejection; the caller keeps the operation and
// evaluates it elsewhere. Any other error is fatal.
func (p *Plan) Add(op Operation) (*Plan, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	switch o := op.(type) {
	case Filter:
		return p.addFilter(o)
	case Split:
		return p.addSplit(o)
	case Apply:
		return p.addApply(o)
	case Sort:
		return p.addSort(o)
	case Limit:
		return p.addLimit(o)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
}

// AddAll offers operations in order and stops at the first failure.
func (p *Plan) AddAll(ops ...Operation) (*Plan, error) {
	cur := p
	for _, op := range ops {
		next, err := cur.Add(op)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (p *Plan) addFilter(op Filter) (*Plan, error) {
	if op.Expr == nil {
		return nil, reject(RejectInvalid, op, "filter expression is nil")
	}
	if !expr.Resolved(op.Expr) {
		return nil, reject(RejectUnresolved, op, "filter has free references")
	}
	e := p.annotate(op.Expr)
	switch p.mode {
	case ModeRaw:
		if !p.backend.CanAcceptFilter(e) {
			return nil, reject(RejectCapability, op, "%s cannot filter on %s", p.engine, e)
		}
		c := p.clone()
		c.filter = expr.Simplify(expr.And(p.filter, e))
		return c, nil
	case ModeSplit:
		if name, ok := p.ungroupedRef(e); ok {
			return nil, reject(RejectInvalid, op, "%s is not an output of the %s plan", name, p.mode)
		}
		if !p.backend.CanAcceptHavingFilter(e) {
			return nil, reject(RejectCapability, op, "%s cannot filter groups on %s", p.engine, e)
		}
		c := p.clone()
		c.having = expr.Simplify(expr.And(p.having, e))
		return c, nil
	default:
		return nil, reject(RejectMode, op, "cannot filter a %s plan", p.mode)
	}
}

func (p *Plan) addSplit(op Split) (*Plan, error) {
	if op.Expr == nil || op.Name == "" {
		return nil, reject(RejectInvalid, op, "split needs a name and an expression")
	}
	if p.mode != ModeRaw {
		return nil, reject(RejectMode, op, "can only split a raw plan (mode is %s)", p.mode)
	}
	e := p.annotate(op.Expr)
	if !p.backend.CanAcceptSplit(e) {
		return nil, reject(RejectCapability, op, "%s cannot split on %s", p.engine, e)
	}
	c := p.clone()
	c.suppress = false
	c.mode = ModeSplit
	c.dataName = op.DataName
	c.split = e
	c.key = op.Name
	c.rawAttributes = p.attributes.clone()
	c.attributes = Attributes{{Name: op.Name, Type: e.Type()}}
	c.applies = []Apply{}
	c.having = expr.True
	return c, nil
}

func (p *Plan) addApply(op Apply) (*Plan, error) {
	if op.Expr == nil || op.Name == "" {
		return nil, reject(RejectInvalid, op, "apply needs a name and an expression")
	}
	e := p.annotate(op.Expr)
	if t := e.Type(); t != expr.TypeNumber && t != expr.TypeTime {
		return nil, reject(RejectType, op, "apply %s has type %q, need NUMBER or TIME", op.Name, t)
	}

	if p.mode == ModeRaw {
		if !p.backend.CanAcceptApply(e) {
			return nil, reject(RejectCapability, op, "%s cannot derive %s", p.engine, e)
		}
		c := p.clone()
		c.derived = withApply(c.derived, Apply{Name: op.Name, Expr: e})
		c.attributes = p.attributes.With(op.Name, e.Type())
		return c, nil
	}

	if op.Name == p.key {
		return nil, reject(RejectKeyCollision, op, "cannot redefine split key %s", p.key)
	}
	if name, ok := p.ungroupedRef(e); ok {
		return nil, reject(RejectInvalid, op, "%s is not an output of the %s plan", name, p.mode)
	}
	if !p.backend.CanAcceptApply(e) {
		// An aggregate the backend cannot compute directly may still be
		// expressible through its distributed form.
		distributed := aggregate.Distribute(e)
		if expr.Equal(distributed, e) || !p.backend.CanAcceptApply(distributed) {
			return nil, reject(RejectCapability, op, "%s cannot compute %s", p.engine, e)
		}
		e = distributed
	}

	basic, err := p.Decompose(Apply{Name: op.Name, Expr: e})
	if err != nil {
		return nil, err
	}
	c := p.clone()
	for _, a := range basic {
		c.applies = append(c.applies, a)
		c.attributes = c.attributes.With(a.Name, a.Expr.Type())
	}
	return c, nil
}

func (p *Plan) addSort(op Sort) (*Plan, error) {
	if op.Expr == nil {
		return nil, reject(RejectInvalid, op, "sort expression is nil")
	}
	if p.limit != nil {
		return nil, reject(RejectSortAfterLimit, op, "cannot sort after limit")
	}
	if op.Direction == "" {
		op.Direction = Ascending
	}
	op.Expr = p.annotate(op.Expr)
	if !p.backend.CanAcceptSort(op) {
		return nil, reject(RejectCapability, op, "%s cannot sort on %s", p.engine, op.Expr)
	}
	c := p.clone()
	c.sort = &op
	return c, nil
}

func (p *Plan) addLimit(op Limit) (*Plan, error) {
	if op.N < 0 {
		return nil, reject(RejectInvalid, op, "limit must not be negative")
	}
	if !p.backend.CanAcceptLimit(op) {
		return nil, reject(RejectCapability, op, "%s cannot limit", p.engine)
	}
	merged := op
	if p.limit != nil {
		merged = MergeLimit(*p.limit, op)
	}
	c := p.clone()
	c.limit = &merged
	return c, nil
}

// annotate fills in the types of untyped references from the plan's schema.
// Outside aggregates a grouped or totalled plan resolves names against its
// current output schema first, so an apply that shadows a raw column wins.
// Aggregate operands always resolve against the pre-aggregation schema.
func (p *Plan) annotate(e expr.Expr) expr.Expr {
	if p.mode == ModeRaw {
		return typeRefs(e, p.rawAttributes, p.attributes)
	}
	return expr.Substitute(e, func(n expr.Expr) (expr.Expr, bool) {
		switch n := n.(type) {
		case expr.Aggregate:
			n.Dataset = typeRefs(n.Dataset, p.rawAttributes)
			n.Operand = typeRefs(n.Operand, p.rawAttributes)
			return n, true
		case expr.Ref:
			return typeRef(n, p.attributes, p.rawAttributes)
		}
		return nil, false
	})
}

func typeRefs(e expr.Expr, schemas ...Attributes) expr.Expr {
	return expr.Substitute(e, func(n expr.Expr) (expr.Expr, bool) {
		if r, ok := n.(expr.Ref); ok {
			return typeRef(r, schemas...)
		}
		return nil, false
	})
}

func typeRef(r expr.Ref, schemas ...Attributes) (expr.Expr, bool) {
	if r.Nest != 0 || r.Kind != expr.TypeUnknown {
		return nil, false
	}
	for _, schema := range schemas {
		if attr, ok := schema.Get(r.Name); ok {
			r.Kind = attr.Type
			return r, true
		}
	}
	return nil, false
}

// ungroupedRef returns the first reference outside an aggregate that names
// something other than an output of a grouped or totalled plan. Such a
// reference has no single value per output row.
func (p *Plan) ungroupedRef(e expr.Expr) (string, bool) {
	var name string
	expr.Walk(e, func(n expr.Expr) bool {
		if name != "" {
			return false
		}
		switch n := n.(type) {
		case expr.Aggregate:
			return false
		case expr.Ref:
			if n.Nest == 0 && n.Kind != expr.TypeDataset && !p.attributes.Has(n.Name) {
				name = n.Name
			}
		}
		return true
	})
	return name, name != ""
}

// withApply returns applies with a replaced in place, or appended.
func withApply(applies []Apply, a Apply) []Apply {
	for i, existing := range applies {
		if existing.Name == a.Name {
			applies[i] = a
			return applies
		}
	}
	return append(applies, a)
}
