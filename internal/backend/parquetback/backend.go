// Package parquetback implements the parquet engine.
//
// A parquet file is a scan-only source: the engine projects columns and
// caps the row count, and every other operation is evaluated by the caller.
// Plans never leave raw mode.
package parquetback

import (
	"fmt"
	"strings"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// Engine is the registered engine name.
const Engine = "parquet"

func init() {
	plan.Register(Engine, func(spec plan.Spec) (plan.Backend, error) {
		return New(spec.Source)
	})
}

// Backend reads one parquet file.
type Backend struct {
	path string
}

var _ plan.Backend = (*Backend)(nil)

// New creates a backend for src.DataSource.
func New(src plan.Source) (*Backend, error) {
	if src.DataSource == "" {
		return nil, fmt.Errorf("parquetback: source needs a dataSource path")
	}
	return &Backend{path: src.DataSource}, nil
}

func (b *Backend) Engine() string { return Engine }

// Path returns the file the backend reads.
func (b *Backend) Path() string { return b.path }

func (b *Backend) CanAcceptFilter(expr.Expr) bool       { return false }
func (b *Backend) CanAcceptTotal() bool                 { return false }
func (b *Backend) CanAcceptSplit(expr.Expr) bool        { return false }
func (b *Backend) CanAcceptApply(expr.Expr) bool        { return false }
func (b *Backend) CanAcceptSort(plan.Sort) bool         { return false }
func (b *Backend) CanAcceptHavingFilter(expr.Expr) bool { return false }

// CanAcceptLimit accepts positive limits. A zero limit has no request form
// since a zero Request.Limit reads the whole file.
func (b *Backend) CanAcceptLimit(l plan.Limit) bool { return l.N > 0 }

// BuildQuery reads the plan's columns, up to its limit.
func (b *Backend) BuildQuery(p *plan.Plan) (plan.Query, error) {
	if p.Mode() != plan.ModeRaw {
		return plan.Query{}, fmt.Errorf("parquetback: cannot query a %s plan", p.Mode())
	}
	attrs := p.Attributes()
	req := plan.Request{
		Engine:  Engine,
		Kind:    plan.KindQuery,
		Source:  b.path,
		Columns: attrs.Names(),
		Context: p.Source().Context,
	}
	if l, ok := p.LimitSpec(); ok {
		req.Limit = l.N
	}
	return plan.Query{Request: req, Transform: rowsTransform(attrs)}, nil
}

// BuildIntrospection asks for the file schema.
func (b *Backend) BuildIntrospection(p *plan.Plan) (plan.Introspection, error) {
	return plan.Introspection{
		Request: plan.Request{
			Engine:  Engine,
			Kind:    plan.KindIntrospect,
			Source:  b.path,
			Context: p.Source().Context,
		},
		Transform: schemaTransform,
	}, nil
}

func rowsTransform(attrs plan.Attributes) func(plan.Response) (plan.Dataset, error) {
	return func(resp plan.Response) (plan.Dataset, error) {
		types := make([]expr.Type, len(resp.Columns))
		for i, name := range resp.Columns {
			if attr, ok := attrs.Get(name); ok {
				types[i] = attr.Type
			}
		}
		ds := plan.Dataset{Attributes: append([]string(nil), resp.Columns...)}
		for r, row := range resp.Rows {
			if len(row) != len(resp.Columns) {
				return plan.Dataset{}, fmt.Errorf("row %d has %d values for %d columns", r, len(row), len(resp.Columns))
			}
			d := make(plan.Datum, len(row))
			for i, raw := range row {
				v, err := plan.ConvertValue(raw, types[i])
				if err != nil {
					return plan.Dataset{}, fmt.Errorf("row %d column %s: %w", r, resp.Columns[i], err)
				}
				d[resp.Columns[i]] = v
			}
			ds.Data = append(ds.Data, d)
		}
		return ds, nil
	}
}

func schemaTransform(resp plan.Response) (plan.Attributes, error) {
	attrs := plan.Attributes{}
	for i, row := range resp.Rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("schema row %d: want name and type, got %d values", i, len(row))
		}
		name, _ := row[0].(string)
		typ, _ := row[1].(string)
		if name == "" {
			return nil, fmt.Errorf("schema row %d: bad column name %v", i, row[0])
		}
		attrs = append(attrs, plan.Attribute{Name: name, Type: SemanticType(typ)})
	}
	return attrs, nil
}

// SemanticType maps a parquet column type, as printed by the parquet
// library, to a semantic type.
func SemanticType(parquetType string) expr.Type {
	t := strings.ToUpper(strings.TrimSpace(parquetType))
	switch {
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATE":
		return expr.TypeTime
	case t == "BOOLEAN":
		return expr.TypeBoolean
	case strings.HasPrefix(t, "INT(") || strings.HasPrefix(t, "DECIMAL"):
		return expr.TypeNumber
	case t == "INT32", t == "INT64", t == "FLOAT", t == "DOUBLE":
		return expr.TypeNumber
	default:
		return expr.TypeString
	}
}
