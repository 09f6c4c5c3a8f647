package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/expr"
)

// fakeBackend is a configurable in-memory backend for planner tests.
type fakeBackend struct {
	engine   string
	noFilter bool
	noTotal  bool
	noSplit  bool
	noSort   bool
	noLimit  bool
	noHaving bool

	// simpleAggregates restricts applies to single aggregates over a bare
	// column, or arithmetic over such aggregates.
	simpleAggregates bool
}

func (b fakeBackend) Engine() string                       { return b.engine }
func (b fakeBackend) CanAcceptFilter(expr.Expr) bool       { return !b.noFilter }
func (b fakeBackend) CanAcceptTotal() bool                 { return !b.noTotal }
func (b fakeBackend) CanAcceptSplit(expr.Expr) bool        { return !b.noSplit }
func (b fakeBackend) CanAcceptSort(Sort) bool              { return !b.noSort }
func (b fakeBackend) CanAcceptLimit(Limit) bool            { return !b.noLimit }
func (b fakeBackend) CanAcceptHavingFilter(expr.Expr) bool { return !b.noHaving }

func (b fakeBackend) CanAcceptApply(e expr.Expr) bool {
	if !b.simpleAggregates {
		return true
	}
	ok := true
	expr.Walk(e, func(n expr.Expr) bool {
		if agg, isAgg := n.(expr.Aggregate); isAgg {
			if agg.Operand != nil {
				if _, isRef := agg.Operand.(expr.Ref); !isRef {
					ok = false
				}
			}
			return false
		}
		return true
	})
	return ok
}

func (b fakeBackend) BuildQuery(p *Plan) (Query, error) {
	return Query{
		Request: Request{Engine: b.engine, Kind: KindQuery, Query: p.String()},
		Transform: func(resp Response) (Dataset, error) {
			ds := Dataset{Attributes: resp.Columns}
			for _, row := range resp.Rows {
				d := Datum{}
				for i, col := range resp.Columns {
					v, err := expr.FromNative(row[i])
					if err != nil {
						return Dataset{}, err
					}
					d[col] = v
				}
				ds.Data = append(ds.Data, d)
			}
			return ds, nil
		},
	}, nil
}

func (b fakeBackend) BuildIntrospection(p *Plan) (Introspection, error) {
	return Introspection{
		Request: Request{Engine: b.engine, Kind: KindIntrospect, Source: p.Source().Table},
		Transform: func(resp Response) (Attributes, error) {
			var attrs Attributes
			for _, row := range resp.Rows {
				attrs = append(attrs, Attribute{Name: row[0].(string), Type: expr.Type(row[1].(string))})
			}
			return attrs, nil
		},
	}, nil
}

var fakeBackends = []fakeBackend{
	{engine: "fake"},
	{engine: "fake-strict", noFilter: true, noTotal: true, noSplit: true, noSort: true, noHaving: true, simpleAggregates: true},
	{engine: "fake-simple", simpleAggregates: true},
	{engine: "fake-nolimit", noLimit: true},
}

func init() {
	for _, b := range fakeBackends {
		Register(b.engine, func(Spec) (Backend, error) { return b, nil })
	}
}

var salesAttributes = Attributes{
	{Name: "time", Type: expr.TypeTime},
	{Name: "country", Type: expr.TypeString},
	{Name: "city", Type: expr.TypeString},
	{Name: "price", Type: expr.TypeNumber},
	{Name: "cost", Type: expr.TypeNumber},
	{Name: "refunded", Type: expr.TypeBoolean},
}

func newPlan(t *testing.T, engine string, opts ...Option) *Plan {
	t.Helper()
	p, err := New(Spec{Engine: engine, Attributes: salesAttributes, Source: Source{Table: "sales"}}, opts...)
	require.NoError(t, err)
	return p
}

func parse(t *testing.T, src string) expr.Expr {
	t.Helper()
	e, err := expr.Parse(src, salesAttributes.Env())
	require.NoError(t, err)
	return e
}

func mustAdd(t *testing.T, p *Plan, ops ...Operation) *Plan {
	t.Helper()
	out, err := p.AddAll(ops...)
	require.NoError(t, err)
	return out
}
