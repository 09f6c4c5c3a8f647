package sqlback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// ErrUnsupported is returned for expressions the dialect cannot express.
var ErrUnsupported = errors.New("sqlback: unsupported expression")

// scope decides what a bare reference means.
type scope int

const (
	// rowScope references are table columns or raw derived attributes.
	rowScope scope = iota

	// groupScope references are the split key or other applies, which are
	// inlined.
	groupScope

	// outerScope references are output column aliases of an inner query.
	outerScope
)

// exprCompiler turns expressions into parameterized SQL fragments.
//
// All values are parameterized, never interpolated. Numeric constants that
// come from the plan shape itself (bucket sizes, quantiles) are the only
// exception.
type exprCompiler struct {
	dialect Dialect
	exact   bool
	args    []any

	// derived maps raw derived attribute names to their definitions.
	derived map[string]expr.Expr

	// outputs maps group-level names (split key, applies) to their
	// definitions and the scope they are compiled in.
	outputs map[string]output

	// lenient compiles unknown group-level names as plain identifiers. The
	// capability predicates use it since they do not see the plan.
	lenient bool

	inlining map[string]bool
}

type output struct {
	def   expr.Expr
	scope scope
}

func newExprCompiler(d Dialect, exact bool) *exprCompiler {
	return &exprCompiler{
		dialect:  d,
		exact:    exact,
		derived:  map[string]expr.Expr{},
		outputs:  map[string]output{},
		inlining: map[string]bool{},
	}
}

func (c *exprCompiler) bind(v any) string {
	c.args = append(c.args, v)
	return c.dialect.placeholder(len(c.args))
}

func (c *exprCompiler) compile(e expr.Expr, s scope) (string, error) {
	switch n := e.(type) {
	case expr.Literal:
		return c.literal(n.Value)
	case expr.Ref:
		return c.ref(n, s)
	case expr.Binary:
		return c.binary(n, s)
	case expr.Not:
		inner, err := c.compile(n.Operand, s)
		if err != nil {
			return "", err
		}
		return "(NOT " + inner + ")", nil
	case expr.Aggregate:
		if s != groupScope {
			return "", fmt.Errorf("%w: aggregate %s outside an apply", ErrUnsupported, n)
		}
		return c.aggregate(n)
	case expr.NumberBucket:
		return c.numberBucket(n, s)
	case expr.TimeBucket:
		return c.timeBucket(n, s)
	case nil:
		return "", fmt.Errorf("%w: nil expression", ErrUnsupported)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupported, e)
	}
}

func (c *exprCompiler) literal(v expr.Value) (string, error) {
	switch val := v.(type) {
	case nil, expr.Null:
		return "NULL", nil
	case expr.Number:
		return c.bind(float64(val)), nil
	case expr.String:
		return c.bind(string(val)), nil
	case expr.Bool:
		return c.bind(bool(val)), nil
	case expr.Time:
		return c.bind(val.Std().UTC()), nil
	default:
		return "", fmt.Errorf("%w: literal of type %s", ErrUnsupported, expr.ValueType(v))
	}
}

func (c *exprCompiler) ref(r expr.Ref, s scope) (string, error) {
	if r.Nest != 0 {
		return "", fmt.Errorf("%w: free reference %s", ErrUnsupported, r)
	}
	switch s {
	case rowScope:
		if def, ok := c.derived[r.Name]; ok {
			return c.inline(r.Name, def, rowScope)
		}
		return quoteIdent(r.Name), nil
	case groupScope:
		if out, ok := c.outputs[r.Name]; ok {
			return c.inline(r.Name, out.def, out.scope)
		}
		if c.lenient {
			return quoteIdent(r.Name), nil
		}
		return "", fmt.Errorf("%w: unknown attribute %s", ErrUnsupported, r.Name)
	default:
		return quoteIdent(r.Name), nil
	}
}

func (c *exprCompiler) inline(name string, def expr.Expr, s scope) (string, error) {
	if c.inlining[name] {
		return "", fmt.Errorf("%w: %s is defined in terms of itself", ErrUnsupported, name)
	}
	c.inlining[name] = true
	defer delete(c.inlining, name)
	return c.compile(def, s)
}

var binarySQL = map[expr.Op]string{
	expr.OpLessThan:           "<",
	expr.OpLessThanOrEqual:    "<=",
	expr.OpGreaterThan:        ">",
	expr.OpGreaterThanOrEqual: ">=",
	expr.OpAnd:                "AND",
	expr.OpOr:                 "OR",
	expr.OpAdd:                "+",
	expr.OpSubtract:           "-",
	expr.OpMultiply:           "*",
}

func (c *exprCompiler) binary(b expr.Binary, s scope) (string, error) {
	if b.Op == expr.OpIs {
		return c.is(b, s)
	}
	if b.Op.IsArithmetic() && (b.LHS.Type() == expr.TypeTime || b.RHS.Type() == expr.TypeTime) {
		return "", fmt.Errorf("%w: time arithmetic %s", ErrUnsupported, b)
	}

	lhs, err := c.compile(b.LHS, s)
	if err != nil {
		return "", err
	}
	rhs, err := c.compile(b.RHS, s)
	if err != nil {
		return "", err
	}
	if b.Op == expr.OpDivide {
		// Integer columns and counts would otherwise divide as integers.
		return fmt.Sprintf("(CAST(%s AS DOUBLE PRECISION) / NULLIF(%s, 0))", lhs, rhs), nil
	}
	op, ok := binarySQL[b.Op]
	if !ok {
		return "", fmt.Errorf("%w: operator %s", ErrUnsupported, b.Op)
	}
	return fmt.Sprintf("(%s %s %s)", lhs, op, rhs), nil
}

// is compiles equality. Ranges become half-open interval checks on the
// bucketed operand; null becomes IS NULL.
func (c *exprCompiler) is(b expr.Binary, s scope) (string, error) {
	rhs, isLit := b.RHS.(expr.Literal)
	if !isLit {
		return c.equals(b, s)
	}
	switch val := rhs.Value.(type) {
	case nil, expr.Null:
		lhs, err := c.compile(b.LHS, s)
		if err != nil {
			return "", err
		}
		return "(" + lhs + " IS NULL)", nil
	case expr.NumberRange:
		subject := b.LHS
		if nb, ok := subject.(expr.NumberBucket); ok {
			subject = nb.Operand
		}
		return c.interval(subject, s, val.Start, val.End)
	case expr.TimeRange:
		subject := b.LHS
		if tb, ok := subject.(expr.TimeBucket); ok {
			subject = tb.Operand
		}
		return c.interval(subject, s, val.Start.UTC(), val.End.UTC())
	default:
		return c.equals(b, s)
	}
}

func (c *exprCompiler) equals(b expr.Binary, s scope) (string, error) {
	lhs, err := c.compile(b.LHS, s)
	if err != nil {
		return "", err
	}
	rhs, err := c.compile(b.RHS, s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s = %s)", lhs, rhs), nil
}

func (c *exprCompiler) interval(subject expr.Expr, s scope, start, end any) (string, error) {
	x, err := c.compile(subject, s)
	if err != nil {
		return "", err
	}
	lo := c.bind(start)
	hi := c.bind(end)
	return fmt.Sprintf("(%s >= %s AND %s < %s)", x, lo, x, hi), nil
}

func (c *exprCompiler) aggregate(a expr.Aggregate) (string, error) {
	ds, ok := a.Dataset.(expr.Ref)
	if !ok || ds.Name != "main" || ds.Nest != 0 {
		return "", fmt.Errorf("%w: aggregate over %s", ErrUnsupported, a.Dataset)
	}
	if a.Kind == expr.AggCount {
		return "COUNT(*)", nil
	}
	if a.Operand == nil {
		return "", fmt.Errorf("%w: %s without operand", ErrUnsupported, a.Kind)
	}
	x, err := c.compile(a.Operand, rowScope)
	if err != nil {
		return "", err
	}
	switch a.Kind {
	case expr.AggSum:
		return "COALESCE(SUM(" + x + "), 0)", nil
	case expr.AggMin:
		return "MIN(" + x + ")", nil
	case expr.AggMax:
		return "MAX(" + x + ")", nil
	case expr.AggAverage:
		return "AVG(" + x + ")", nil
	case expr.AggCountDistinct:
		return "COUNT(DISTINCT " + x + ")", nil
	case expr.AggQuantile:
		if !c.dialect.supportsQuantile() {
			return "", fmt.Errorf("%w: quantile on %s", ErrUnsupported, c.dialect)
		}
		if c.exact {
			return "", fmt.Errorf("%w: interpolated quantile with exact results only", ErrUnsupported)
		}
		q := strconv.FormatFloat(a.Quantile, 'f', -1, 64)
		return "percentile_cont(" + q + ") WITHIN GROUP (ORDER BY " + x + ")", nil
	default:
		return "", fmt.Errorf("%w: aggregate %s", ErrUnsupported, a.Kind)
	}
}

// numberBucket compiles to the bucket start; the response transform turns
// it back into a range.
func (c *exprCompiler) numberBucket(n expr.NumberBucket, s scope) (string, error) {
	if n.Size <= 0 {
		return "", fmt.Errorf("%w: bucket size %v", ErrUnsupported, n.Size)
	}
	start := len(c.args)
	x, err := c.compile(n.Operand, s)
	if err != nil {
		return "", err
	}
	operandArgs := append([]any(nil), c.args[start:]...)
	for i := 1; i < c.dialect.floorRepeats(); i++ {
		c.args = append(c.args, operandArgs...)
	}

	size, offset := numberLiteral(n.Size), numberLiteral(n.Offset)
	v := fmt.Sprintf("((CAST(%s AS DOUBLE PRECISION) - %s) / %s)", x, offset, size)
	return fmt.Sprintf("(%s * %s + %s)", c.dialect.floor(v), size, offset), nil
}

func (c *exprCompiler) timeBucket(t expr.TimeBucket, s scope) (string, error) {
	if !c.dialect.supportsTimeBucket() {
		return "", fmt.Errorf("%w: timeBucket on %s", ErrUnsupported, c.dialect)
	}
	if !expr.IsTimeUnit(t.Unit) {
		return "", fmt.Errorf("%w: time unit %q", ErrUnsupported, t.Unit)
	}
	x, err := c.compile(t.Operand, s)
	if err != nil {
		return "", err
	}
	return "date_trunc('" + t.Unit + "', " + x + ")", nil
}

// Compile converts a plan into parameterized SQL for the dialect.
// Returns (sql, params, error).
func (b *Backend) Compile(p *plan.Plan) (string, []any, error) {
	c := newExprCompiler(b.dialect, b.exact)
	for _, d := range p.Derived() {
		c.derived[d.Name] = d.Expr
	}

	var sb strings.Builder
	var err error
	switch p.Mode() {
	case plan.ModeRaw:
		err = c.writeRaw(&sb, p, b.table)
	case plan.ModeTotal, plan.ModeSplit:
		err = c.writeGrouped(&sb, p, b.table)
	default:
		err = fmt.Errorf("%w: mode %s", ErrUnsupported, p.Mode())
	}
	if err != nil {
		return "", nil, err
	}

	if s, ok := p.SortSpec(); ok {
		ref, isRef := s.Expr.(expr.Ref)
		if !isRef {
			return "", nil, fmt.Errorf("%w: sort on %s", ErrUnsupported, s.Expr)
		}
		dir := "ASC"
		if s.Direction == plan.Descending {
			dir = "DESC"
		}
		sb.WriteString(" ORDER BY " + quoteIdent(ref.Name) + " " + dir)
	}
	if l, ok := p.LimitSpec(); ok {
		sb.WriteString(" LIMIT " + strconv.Itoa(l.N))
	}
	return sb.String(), c.args, nil
}

func (c *exprCompiler) writeRaw(sb *strings.Builder, p *plan.Plan, table string) error {
	attrs := p.Attributes()
	cols := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		def, ok := c.derived[attr.Name]
		if !ok {
			cols = append(cols, quoteIdent(attr.Name))
			continue
		}
		sql, err := c.inline(attr.Name, def, rowScope)
		if err != nil {
			return fmt.Errorf("derived attribute %s: %w", attr.Name, err)
		}
		cols = append(cols, sql+" AS "+quoteIdent(attr.Name))
	}
	if len(cols) == 0 {
		cols = append(cols, "*")
	}
	sb.WriteString("SELECT " + strings.Join(cols, ", ") + " FROM " + quoteTable(table))
	return c.writeWhere(sb, p.Filter())
}

func (c *exprCompiler) writeWhere(sb *strings.Builder, filter expr.Expr) error {
	if filter == nil || expr.Equal(filter, expr.True) {
		return nil
	}
	where, err := c.compile(filter, rowScope)
	if err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}
	sb.WriteString(" WHERE " + where)
	return nil
}

// totalRowsColumn keeps the select list of a total without applies valid.
const totalRowsColumn = "__rows"

func (c *exprCompiler) writeGrouped(sb *strings.Builder, p *plan.Plan, table string) error {
	split := p.Mode() == plan.ModeSplit
	if split {
		c.outputs[p.Key()] = output{def: p.SplitExpr(), scope: rowScope}
	}
	applies := p.Applies()
	for _, a := range applies {
		c.outputs[a.Name] = output{def: a.Expr, scope: groupScope}
	}

	var cols []string
	if split {
		key, err := c.compile(p.SplitExpr(), rowScope)
		if err != nil {
			return fmt.Errorf("compile split: %w", err)
		}
		cols = append(cols, key+" AS "+quoteIdent(p.Key()))
	}
	for _, a := range applies {
		sql, err := c.inline(a.Name, a.Expr, groupScope)
		if err != nil {
			return fmt.Errorf("compile apply %s: %w", a.Name, err)
		}
		cols = append(cols, sql+" AS "+quoteIdent(a.Name))
	}
	if len(cols) == 0 {
		cols = append(cols, "COUNT(*) AS "+quoteIdent(totalRowsColumn))
	}

	var inner strings.Builder
	inner.WriteString("SELECT " + strings.Join(cols, ", ") + " FROM " + quoteTable(table))
	if err := c.writeWhere(&inner, p.Filter()); err != nil {
		return err
	}
	if split {
		inner.WriteString(" GROUP BY 1")
	}

	having := p.Having()
	if having == nil || expr.Equal(having, expr.True) {
		sb.WriteString(inner.String())
		return nil
	}
	cond, err := c.compile(having, outerScope)
	if err != nil {
		return fmt.Errorf("compile having: %w", err)
	}
	sb.WriteString("SELECT * FROM (" + inner.String() + ") AS " + quoteIdent("q") + " WHERE " + cond)
	return nil
}
