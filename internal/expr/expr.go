package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a sealed interface for expression nodes.
type Expr interface {
	exprNode()

	// Type returns the inferred result type.
	Type() Type

	// String renders the expression in the text syntax accepted by Parse.
	String() string
}

// Op is a binary operator.
type Op string

const (
	OpAdd                Op = "add"
	OpSubtract           Op = "subtract"
	OpMultiply           Op = "multiply"
	OpDivide             Op = "divide"
	OpAnd                Op = "and"
	OpOr                 Op = "or"
	OpIs                 Op = "is"
	OpLessThan           Op = "lessThan"
	OpLessThanOrEqual    Op = "lessThanOrEqual"
	OpGreaterThan        Op = "greaterThan"
	OpGreaterThanOrEqual Op = "greaterThanOrEqual"
)

var opSymbols = map[Op]string{
	OpAdd:                "+",
	OpSubtract:           "-",
	OpMultiply:           "*",
	OpDivide:             "/",
	OpAnd:                "and",
	OpOr:                 "or",
	OpIs:                 "==",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
}

// IsArithmetic reports whether op produces a number.
func (op Op) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		return true
	}
	return false
}

// IsLogical reports whether op combines booleans.
func (op Op) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// IsComparison reports whether op compares two operands.
func (op Op) IsComparison() bool {
	switch op {
	case OpIs, OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		return true
	}
	return false
}

// AggKind identifies an aggregate operation.
type AggKind string

const (
	AggCount         AggKind = "count"
	AggSum           AggKind = "sum"
	AggMin           AggKind = "min"
	AggMax           AggKind = "max"
	AggAverage       AggKind = "average"
	AggCountDistinct AggKind = "countDistinct"
	AggQuantile      AggKind = "quantile"
)

// AggKinds lists every aggregate kind.
var AggKinds = []AggKind{AggCount, AggSum, AggMin, AggMax, AggAverage, AggCountDistinct, AggQuantile}

// IsAggKind reports whether name is a known aggregate kind.
func IsAggKind(name string) bool {
	for _, k := range AggKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

// Literal is a constant.
type Literal struct {
	Value Value
}

func (Literal) exprNode() {}

func (l Literal) Type() Type { return ValueType(l.Value) }

func (l Literal) String() string { return FormatValue(l.Value) }

// Ref references an attribute by name. Nest counts how many scopes up the
// name is bound; a ref with Nest > 0 is free (unresolved) at this level.
type Ref struct {
	Name string
	Nest int
	Kind Type
}

func (Ref) exprNode() {}

func (r Ref) Type() Type { return r.Kind }

func (r Ref) String() string {
	return "$" + strings.Repeat("^", r.Nest) + r.Name
}

// Binary applies an operator to two operands.
type Binary struct {
	Op  Op
	LHS Expr
	RHS Expr
}

func (Binary) exprNode() {}

func (b Binary) Type() Type {
	if b.Op.IsArithmetic() {
		if b.Op == OpAdd && b.LHS.Type() == TypeTime {
			return TypeTime
		}
		return TypeNumber
	}
	return TypeBoolean
}

func (b Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.LHS, opSymbols[b.Op], b.RHS)
}

// Not negates a boolean expression.
type Not struct {
	Operand Expr
}

func (Not) exprNode() {}

func (Not) Type() Type { return TypeBoolean }

func (n Not) String() string { return "not " + n.Operand.String() }

// Aggregate computes Kind over the rows of Dataset. Operand is evaluated per
// row and is nil for count. Quantile is only meaningful for AggQuantile.
type Aggregate struct {
	Kind     AggKind
	Dataset  Expr
	Operand  Expr
	Quantile float64
}

func (Aggregate) exprNode() {}

func (a Aggregate) Type() Type {
	if (a.Kind == AggMin || a.Kind == AggMax) && a.Operand != nil && a.Operand.Type() == TypeTime {
		return TypeTime
	}
	return TypeNumber
}

func (a Aggregate) String() string {
	switch {
	case a.Operand == nil:
		return fmt.Sprintf("%s.%s()", a.Dataset, a.Kind)
	case a.Kind == AggQuantile:
		return fmt.Sprintf("%s.%s(%s,%s)", a.Dataset, a.Kind, a.Operand,
			strconv.FormatFloat(a.Quantile, 'g', -1, 64))
	default:
		return fmt.Sprintf("%s.%s(%s)", a.Dataset, a.Kind, a.Operand)
	}
}

// NumberBucket buckets a number into [offset + k*size, offset + (k+1)*size).
type NumberBucket struct {
	Operand Expr
	Size    float64
	Offset  float64
}

func (NumberBucket) exprNode() {}

func (NumberBucket) Type() Type { return TypeNumberRange }

func (n NumberBucket) String() string {
	return fmt.Sprintf("%s.numberBucket(%s,%s)", n.Operand,
		strconv.FormatFloat(n.Size, 'g', -1, 64),
		strconv.FormatFloat(n.Offset, 'g', -1, 64))
}

// TimeBucket truncates a time to a calendar unit (minute, hour, day, week,
// month, year).
type TimeBucket struct {
	Operand Expr
	Unit    string
}

func (TimeBucket) exprNode() {}

func (TimeBucket) Type() Type { return TypeTimeRange }

func (t TimeBucket) String() string {
	return fmt.Sprintf("%s.timeBucket(%s)", t.Operand, t.Unit)
}

// Common constants.
var (
	True  Expr = Literal{Value: Bool(true)}
	False Expr = Literal{Value: Bool(false)}
	Zero  Expr = Literal{Value: Number(0)}
)

// Lit wraps a value in a literal.
func Lit(v Value) Literal { return Literal{Value: v} }

// Num is shorthand for a numeric literal.
func Num(f float64) Literal { return Literal{Value: Number(f)} }

// Str is shorthand for a string literal.
func Str(s string) Literal { return Literal{Value: String(s)} }

// NewRef creates a resolved reference of the given type.
func NewRef(name string, t Type) Ref { return Ref{Name: name, Kind: t} }

// Main is the conventional reference to the dataset being aggregated.
var Main = Ref{Name: "main", Kind: TypeDataset}

// Count builds ds.count().
func Count(ds Expr) Aggregate { return Aggregate{Kind: AggCount, Dataset: ds} }

// Agg builds ds.<kind>(operand).
func Agg(kind AggKind, ds, operand Expr) Aggregate {
	if kind == AggCount {
		return Count(ds)
	}
	return Aggregate{Kind: kind, Dataset: ds, Operand: operand}
}

// Sum builds ds.sum(operand).
func Sum(ds, operand Expr) Aggregate { return Agg(AggSum, ds, operand) }

// Is builds lhs == rhs.
func Is(lhs, rhs Expr) Binary { return Binary{Op: OpIs, LHS: lhs, RHS: rhs} }

// Multiply builds lhs * rhs.
func Multiply(lhs, rhs Expr) Binary { return Binary{Op: OpMultiply, LHS: lhs, RHS: rhs} }

// Divide builds lhs / rhs.
func Divide(lhs, rhs Expr) Binary { return Binary{Op: OpDivide, LHS: lhs, RHS: rhs} }

// And conjoins expressions, dropping always-true operands.
// The conjunction of nothing is True.
func And(exprs ...Expr) Expr {
	return chain(OpAnd, True, exprs, func(e Expr) bool { return Equal(e, True) })
}

// Or disjoins expressions. The disjunction of nothing is False.
func Or(exprs ...Expr) Expr {
	return chain(OpOr, False, exprs, func(e Expr) bool { return Equal(e, False) })
}

// Add builds a left-associated sum e1 + e2 + ...
func Add(exprs ...Expr) Expr {
	return chain(OpAdd, Zero, exprs, nil)
}

// Subtract builds a left-associated difference e1 - e2 - ...
func Subtract(exprs ...Expr) Expr {
	return chain(OpSubtract, Zero, exprs, nil)
}

func chain(op Op, empty Expr, exprs []Expr, skip func(Expr) bool) Expr {
	var out Expr
	for _, e := range exprs {
		if e == nil || (skip != nil && skip(e)) {
			continue
		}
		if out == nil {
			out = e
			continue
		}
		out = Binary{Op: op, LHS: out, RHS: e}
	}
	if out == nil {
		return empty
	}
	return out
}

// Pattern returns the operands of a top-level left-associated chain of op,
// or nil if e is not such a chain.
//
//	Pattern(a + b + c, OpAdd) == [a, b, c]
func Pattern(e Expr, op Op) []Expr {
	b, ok := e.(Binary)
	if !ok || b.Op != op {
		return nil
	}
	var operands []Expr
	if left := Pattern(b.LHS, op); left != nil {
		operands = append(operands, left...)
	} else {
		operands = append(operands, b.LHS)
	}
	return append(operands, b.RHS)
}

// AddPattern is Pattern(e, OpAdd).
func AddPattern(e Expr) []Expr { return Pattern(e, OpAdd) }

// SubtractPattern is Pattern(e, OpSubtract).
func SubtractPattern(e Expr) []Expr { return Pattern(e, OpSubtract) }
