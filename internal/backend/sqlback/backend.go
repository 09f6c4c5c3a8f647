// Package sqlback implements the sqlite and postgres engines.
//
// Both engines share one backend parameterized by a Dialect. A plan compiles
// to a single SELECT against the source table: the filter becomes WHERE, the
// split becomes the first output column and GROUP BY 1, applies become
// aggregate columns with combining applies inlined, and a having filter
// wraps the grouped query so it can refer to output names.
//
// Capabilities are decided by trying to compile the offered expression, so
// anything the compiler can express is accepted and nothing else is.
package sqlback

import (
	"errors"
	"fmt"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// ErrEternity is returned when a plan over a time-partitioned table is not
// bounded by its time attribute.
var ErrEternity = errors.New("sqlback: query is not filtered on the time attribute")

func init() {
	for _, d := range []Dialect{SQLite, Postgres} {
		plan.Register(string(d), factory(d))
	}
}

func factory(d Dialect) plan.Factory {
	return func(spec plan.Spec) (plan.Backend, error) {
		return New(d, spec.Source)
	}
}

// Backend is a SQL engine. It is immutable.
type Backend struct {
	dialect       Dialect
	table         string
	timeAttribute string
	allowEternity bool
	exact         bool
}

var _ plan.Backend = (*Backend)(nil)

// New creates a backend for src.Table.
func New(d Dialect, src plan.Source) (*Backend, error) {
	if d != SQLite && d != Postgres {
		return nil, fmt.Errorf("sqlback: unknown dialect %q", d)
	}
	if src.Table == "" {
		return nil, fmt.Errorf("sqlback: %s source needs a table", d)
	}
	return &Backend{
		dialect:       d,
		table:         src.Table,
		timeAttribute: src.TimeAttribute,
		allowEternity: src.AllowEternity,
		exact:         src.ExactResultsOnly,
	}, nil
}

// Engine returns the dialect name.
func (b *Backend) Engine() string { return string(b.dialect) }

// Dialect returns the SQL dialect.
func (b *Backend) Dialect() Dialect { return b.dialect }

func (b *Backend) compiles(e expr.Expr, s scope) bool {
	c := newExprCompiler(b.dialect, b.exact)
	c.lenient = true
	_, err := c.compile(e, s)
	return err == nil
}

func (b *Backend) CanAcceptFilter(e expr.Expr) bool {
	return e.Type() == expr.TypeBoolean && b.compiles(e, rowScope)
}

func (b *Backend) CanAcceptTotal() bool { return true }

func (b *Backend) CanAcceptSplit(e expr.Expr) bool {
	switch e.Type() {
	case expr.TypeDataset, expr.TypeBoolean:
		return false
	}
	return b.compiles(e, rowScope)
}

func (b *Backend) CanAcceptApply(e expr.Expr) bool {
	if expr.ContainsAggregate(e) {
		return b.compiles(e, groupScope)
	}
	return b.compiles(e, rowScope)
}

func (b *Backend) CanAcceptSort(s plan.Sort) bool {
	ref, ok := s.Expr.(expr.Ref)
	return ok && ref.Nest == 0
}

func (b *Backend) CanAcceptLimit(plan.Limit) bool { return true }

func (b *Backend) CanAcceptHavingFilter(e expr.Expr) bool {
	return !expr.ContainsAggregate(e) && b.compiles(e, outerScope)
}

// checkEternity rejects unbounded scans of a time-partitioned table.
func (b *Backend) checkEternity(p *plan.Plan) error {
	if b.timeAttribute == "" || b.allowEternity {
		return nil
	}
	for _, name := range expr.RefNames(p.Filter()) {
		if name == b.timeAttribute {
			return nil
		}
	}
	return fmt.Errorf("%w %q (table %s)", ErrEternity, b.timeAttribute, b.table)
}

// BuildQuery compiles the plan and pairs it with its response transform.
func (b *Backend) BuildQuery(p *plan.Plan) (plan.Query, error) {
	if err := b.checkEternity(p); err != nil {
		return plan.Query{}, err
	}
	sql, args, err := b.Compile(p)
	if err != nil {
		return plan.Query{}, err
	}
	return plan.Query{
		Request: plan.Request{
			Engine:  b.Engine(),
			Kind:    plan.KindQuery,
			Source:  b.table,
			Query:   sql,
			Args:    args,
			Context: p.Source().Context,
		},
		Transform: newTransform(p),
	}, nil
}

// BuildIntrospection asks the catalog for the table's columns.
func (b *Backend) BuildIntrospection(p *plan.Plan) (plan.Introspection, error) {
	req := plan.Request{
		Engine:  b.Engine(),
		Kind:    plan.KindIntrospect,
		Source:  b.table,
		Context: p.Source().Context,
	}
	switch b.dialect {
	case Postgres:
		schema, table := splitTable(b.table)
		req.Query = `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1`
		req.Args = []any{table}
		if schema != "" {
			req.Query += ` AND table_schema = $2`
			req.Args = append(req.Args, schema)
		}
		req.Query += ` ORDER BY ordinal_position`
	default:
		req.Query = `SELECT "name", "type" FROM pragma_table_info(?) ORDER BY "cid"`
		req.Args = []any{b.table}
	}
	return plan.Introspection{Request: req, Transform: introspectionTransform()}, nil
}

func splitTable(name string) (schema, table string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}
