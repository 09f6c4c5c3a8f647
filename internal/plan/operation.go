package plan

import (
	"fmt"

	"github.com/roach88/fedplan/internal/expr"
)

// Operation is a sealed interface for the operations a plan accepts.
//
// Operation types:
//   - Filter: restrict rows (raw) or groups (split)
//   - Split: group by an expression, naming the key attribute
//   - Apply: add a named derived or aggregate attribute
//   - Sort: order the output
//   - Limit: cap the output row count
//
// Only types in this package implement it, so Add can switch exhaustively.
type Operation interface {
	operationNode()
	String() string
}

// Filter restricts the plan by a boolean expression.
type Filter struct {
	Expr expr.Expr
}

func (Filter) operationNode() {}

func (f Filter) String() string { return fmt.Sprintf("filter(%s)", exprString(f.Expr)) }

// Split groups the plan by Expr. Name is the key attribute in the output;
// DataName is the attribute under which each group's nested raw plan is
// attached to the result.
type Split struct {
	Name     string
	Expr     expr.Expr
	DataName string
}

func (Split) operationNode() {}

func (s Split) String() string {
	return fmt.Sprintf("split(%s: %s)", s.Name, exprString(s.Expr))
}

// Apply is a named projection. Two applies are equal when their names match
// and their expressions are structurally equal.
type Apply struct {
	Name string
	Expr expr.Expr
}

func (Apply) operationNode() {}

func (a Apply) String() string { return fmt.Sprintf("apply(%s: %s)", a.Name, exprString(a.Expr)) }

// Equal reports structural equality.
func (a Apply) Equal(b Apply) bool {
	return a.Name == b.Name && expr.Equal(a.Expr, b.Expr)
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Sort orders the output by Expr.
type Sort struct {
	Expr      expr.Expr
	Direction Direction
}

func (Sort) operationNode() {}

func (s Sort) String() string {
	dir := s.Direction
	if dir == "" {
		dir = Ascending
	}
	return fmt.Sprintf("sort(%s %s)", exprString(s.Expr), dir)
}

// Limit caps the number of output rows.
type Limit struct {
	N int
}

func (Limit) operationNode() {}

func (l Limit) String() string { return fmt.Sprintf("limit(%d)", l.N) }

// MergeLimit combines two limits, keeping the smaller.
func MergeLimit(a, b Limit) Limit {
	if b.N < a.N {
		return b
	}
	return a
}

func exprString(e expr.Expr) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}
