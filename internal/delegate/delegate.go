// Package delegate pushes a single operation into a plan that is embedded
// as a literal value inside a larger expression tree.
//
// Only one expression shape is delegable: a Literal whose value is an
// expr.ExternalValue wrapping a *plan.Plan. Offering an operation yields
// either a rewritten expression (the literal now carries the extended plan)
// or the operation back as a leftover, never both.
//
// Any other expression shape is a hard failure, ErrCannotDelegate. Callers
// treat it as "resolve this operation outside delegation".
package delegate

import (
	"errors"
	"fmt"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// ErrCannotDelegate is returned for expressions that are not a literal plan.
var ErrCannotDelegate = errors.New("delegate: expression is not an embedded plan")

// Result is the outcome of a delegation. Exactly one field is set.
type Result struct {
	// Expr is the rewritten expression when the plan accepted the operation.
	Expr expr.Expr

	// Leftover is the operation the plan rejected. The caller evaluates it
	// locally.
	Leftover plan.Operation
}

// Delegated reports whether the operation was absorbed by the plan.
func (r Result) Delegated() bool { return r.Expr != nil }

// Delegate offers op to the plan embedded in e.
//
// A rejection from the plan becomes a Leftover result with a nil error.
// Fatal planner errors (unknown operation, temp names exhausted) are
// returned unchanged.
func Delegate(e expr.Expr, op plan.Operation) (Result, error) {
	p, err := EmbeddedPlan(e)
	if err != nil {
		return Result{}, err
	}

	next, err := p.Add(op)
	if err != nil {
		if plan.IsRejection(err) {
			return Result{Leftover: op}, nil
		}
		return Result{}, err
	}
	return Result{Expr: expr.Lit(expr.ExternalValue{External: next})}, nil
}

// DelegateAll offers ops in order and stops at the first leftover. It
// returns the expression built so far and the operations not absorbed.
func DelegateAll(e expr.Expr, ops ...plan.Operation) (current expr.Expr, rest []plan.Operation, err error) {
	current = e
	for i, op := range ops {
		res, err := Delegate(current, op)
		if err != nil {
			return nil, nil, err
		}
		if !res.Delegated() {
			return current, ops[i:], nil
		}
		current = res.Expr
	}
	return current, nil, nil
}

// EmbeddedPlan extracts the plan carried by a literal expression.
func EmbeddedPlan(e expr.Expr) (*plan.Plan, error) {
	lit, ok := e.(expr.Literal)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrCannotDelegate, e)
	}
	ext, ok := lit.Value.(expr.ExternalValue)
	if !ok {
		return nil, fmt.Errorf("%w: literal of type %s", ErrCannotDelegate, expr.ValueType(lit.Value))
	}
	p, ok := ext.External.(*plan.Plan)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: external %T", ErrCannotDelegate, ext.External)
	}
	return p, nil
}
