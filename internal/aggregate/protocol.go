// Package aggregate describes how each aggregate kind can be pushed through
// arithmetic so that nested aggregation can be distributed across grouping
// levels.
//
// Every kind has a Protocol. Only sum has a full algebra:
//
//	sum(0)       => 0
//	sum(c)       => c * count(P)
//	sum(a + b)   => distribute(sum(a)) + distribute(sum(b))
//	sum(a - b)   => distribute(sum(a)) - distribute(sum(b))
//
// The other kinds are narrower. Average is carried as a joint sum and count
// that are divided at recombination time.
//
// The distributed average divides by count(P), which counts every row of
// the dataset. It equals the native average only when the operand is never
// null. Planners use it as a fallback for backends that cannot compute the
// average directly; a backend that can keeps the aggregate as written.
package aggregate

import (
	"github.com/roach88/fedplan/internal/expr"
)

// Protocol is the distribution capability of one aggregate kind.
type Protocol interface {
	// Kind is the aggregate kind this protocol describes.
	Kind() expr.AggKind

	// IsNester reports whether the aggregate's result may sit inside another
	// aggregate at the next grouping level.
	IsNester() bool

	// CanDistribute reports whether Distribute has a rewrite for operand.
	CanDistribute(operand expr.Expr) bool

	// Distribute rewrites agg in terms of aggregates over agg.Dataset.
	// It returns nil when no rewrite exists.
	Distribute(agg expr.Aggregate) expr.Expr
}

var protocols = map[expr.AggKind]Protocol{
	expr.AggSum:           sumProtocol{},
	expr.AggCount:         countProtocol{},
	expr.AggMin:           extremumProtocol{kind: expr.AggMin},
	expr.AggMax:           extremumProtocol{kind: expr.AggMax},
	expr.AggAverage:       averageProtocol{},
	expr.AggCountDistinct: countDistinctProtocol{},
	expr.AggQuantile:      quantileProtocol{},
}

// For returns the protocol of an aggregate kind.
func For(kind expr.AggKind) (Protocol, bool) {
	p, ok := protocols[kind]
	return p, ok
}

// Distribute pushes every aggregate in e through the arithmetic of its
// operand, recursively. Aggregates without a rewrite are left as they are,
// so Distribute(sum($x)) is sum($x). The result is simplified.
func Distribute(e expr.Expr) expr.Expr {
	if e == nil {
		return nil
	}
	return expr.Simplify(expr.SubstituteAggregates(e, distributeOne))
}

// CanDistribute reports whether agg has a rewrite under its protocol.
func CanDistribute(agg expr.Aggregate) bool {
	p, ok := For(agg.Kind)
	return ok && p.CanDistribute(agg.Operand)
}

func distributeOne(agg expr.Aggregate) expr.Expr {
	p, ok := For(agg.Kind)
	if !ok || !p.CanDistribute(agg.Operand) {
		return agg
	}
	if out := p.Distribute(agg); out != nil {
		return out
	}
	return agg
}

type sumProtocol struct{}

func (sumProtocol) Kind() expr.AggKind { return expr.AggSum }
func (sumProtocol) IsNester() bool     { return true }

func (sumProtocol) CanDistribute(operand expr.Expr) bool {
	if _, ok := operand.(expr.Literal); ok {
		return true
	}
	return expr.AddPattern(operand) != nil || expr.SubtractPattern(operand) != nil
}

func (sumProtocol) Distribute(agg expr.Aggregate) expr.Expr {
	if lit, ok := agg.Operand.(expr.Literal); ok {
		n, ok := expr.NumberOf(lit)
		if !ok {
			return nil
		}
		if n == 0 {
			return expr.Zero
		}
		return expr.Multiply(lit, expr.Count(agg.Dataset))
	}
	if operands := expr.AddPattern(agg.Operand); operands != nil {
		return expr.Add(sumEach(agg.Dataset, operands)...)
	}
	if operands := expr.SubtractPattern(agg.Operand); operands != nil {
		return expr.Subtract(sumEach(agg.Dataset, operands)...)
	}
	return nil
}

// sumEach distributes sum(ds, e) for each operand.
func sumEach(ds expr.Expr, operands []expr.Expr) []expr.Expr {
	out := make([]expr.Expr, len(operands))
	for i, e := range operands {
		out[i] = distributeOne(expr.Sum(ds, e))
	}
	return out
}

type countProtocol struct{}

func (countProtocol) Kind() expr.AggKind                  { return expr.AggCount }
func (countProtocol) IsNester() bool                      { return true }
func (countProtocol) CanDistribute(expr.Expr) bool        { return false }
func (countProtocol) Distribute(expr.Aggregate) expr.Expr { return nil }

// extremumProtocol covers min and max. Neither passes through any arithmetic
// combinator; only a constant or a single grouping-aligned column qualifies.
type extremumProtocol struct {
	kind expr.AggKind
}

func (p extremumProtocol) Kind() expr.AggKind { return p.kind }
func (extremumProtocol) IsNester() bool       { return true }

func (extremumProtocol) CanDistribute(operand expr.Expr) bool {
	switch operand.(type) {
	case expr.Literal, expr.Ref:
		return true
	}
	return false
}

func (p extremumProtocol) Distribute(agg expr.Aggregate) expr.Expr {
	switch operand := agg.Operand.(type) {
	case expr.Literal:
		return operand
	case expr.Ref:
		return agg
	}
	return nil
}

// averageProtocol splits an average into a sum term and a row count term.
// Null operands are counted, see the package doc.
type averageProtocol struct{}

func (averageProtocol) Kind() expr.AggKind { return expr.AggAverage }
func (averageProtocol) IsNester() bool     { return true }

func (averageProtocol) CanDistribute(operand expr.Expr) bool { return operand != nil }

func (averageProtocol) Distribute(agg expr.Aggregate) expr.Expr {
	if agg.Operand == nil {
		return nil
	}
	return expr.Divide(distributeOne(expr.Sum(agg.Dataset, agg.Operand)), expr.Count(agg.Dataset))
}

type countDistinctProtocol struct{}

func (countDistinctProtocol) Kind() expr.AggKind { return expr.AggCountDistinct }
func (countDistinctProtocol) IsNester() bool     { return true }

func (countDistinctProtocol) CanDistribute(operand expr.Expr) bool {
	_, ok := operand.(expr.Ref)
	return ok
}

func (countDistinctProtocol) Distribute(agg expr.Aggregate) expr.Expr {
	if _, ok := agg.Operand.(expr.Ref); ok {
		return agg
	}
	return nil
}

type quantileProtocol struct{}

func (quantileProtocol) Kind() expr.AggKind                  { return expr.AggQuantile }
func (quantileProtocol) IsNester() bool                      { return true }
func (quantileProtocol) CanDistribute(expr.Expr) bool        { return false }
func (quantileProtocol) Distribute(expr.Aggregate) expr.Expr { return nil }
