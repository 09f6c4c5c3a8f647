package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/backend/sqlback"
	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
)

// TestSQLitePipeline plans, introspects and executes against a real
// database through the mux.
func TestSQLitePipeline(t *testing.T) {
	ctx := context.Background()
	mux := NewMux()
	mux.Handle(string(sqlback.SQLite), openSales(t))
	orch := orchestrator.New(orchestrator.WithTransport(mux), orchestrator.WithLogger(discard()))

	p, err := plan.New(plan.Spec{Engine: "sqlite", Source: plan.Source{Table: "sales"}})
	require.NoError(t, err)
	p, err = orch.Introspect(ctx, p)
	require.NoError(t, err)
	require.Equal(t, plan.Attributes{
		{Name: "country", Type: expr.TypeString},
		{Name: "city", Type: expr.TypeString},
		{Name: "price", Type: expr.TypeNumber},
		{Name: "cost", Type: expr.TypeNumber},
	}, p.Attributes())

	env := p.Attributes().Env()
	p, err = p.AddAll(
		plan.Filter{Expr: expr.MustParse(`$country == "US"`, env)},
		plan.Split{Name: "City", Expr: expr.MustParse("$city", env), DataName: "rows"},
		plan.Apply{Name: "margin", Expr: expr.MustParse("$main.sum($price) - $main.sum($cost)", env)},
		plan.Sort{Expr: expr.NewRef("margin", expr.TypeNumber), Direction: plan.Descending},
	)
	require.NoError(t, err)

	ds, err := orch.Execute(ctx, p)
	require.NoError(t, err)
	require.Len(t, ds.Data, 2)
	assert.Equal(t, expr.String("NYC"), ds.Data[0]["City"])
	assert.Equal(t, expr.Number(21), ds.Data[0]["margin"])
	assert.Equal(t, expr.String("LA"), ds.Data[1]["City"])
	assert.Equal(t, expr.Number(2), ds.Data[1]["margin"])

	nested, ok := ds.Data[0]["rows"].(expr.ExternalValue)
	require.True(t, ok)
	raw, err := orch.Execute(ctx, nested.External.(*plan.Plan))
	require.NoError(t, err)
	require.Len(t, raw.Data, 2)
	for _, d := range raw.Data {
		assert.Equal(t, expr.String("NYC"), d["city"])
	}
}

func TestSQLitePipelineTotal(t *testing.T) {
	ctx := context.Background()
	orch := orchestrator.New(orchestrator.WithTransport(openSales(t)), orchestrator.WithLogger(discard()))

	p, err := plan.New(plan.Spec{
		Engine: "sqlite",
		Attributes: plan.Attributes{
			{Name: "country", Type: expr.TypeString},
			{Name: "price", Type: expr.TypeNumber},
		},
		Source: plan.Source{Table: "sales"},
	})
	require.NoError(t, err)
	total, err := p.ToTotal("rows")
	require.NoError(t, err)
	total, err = total.AddAll(
		plan.Apply{Name: "n", Expr: expr.MustParse("$main.count()", nil)},
		plan.Apply{Name: "avg", Expr: expr.MustParse("$main.average($price)", p.Attributes().Env())},
	)
	require.NoError(t, err)

	ds, err := orch.Execute(ctx, total)
	require.NoError(t, err)
	require.Len(t, ds.Data, 1)
	assert.Equal(t, expr.Number(4), ds.Data[0]["n"])
	assert.Equal(t, expr.Number(17), ds.Data[0]["avg"])
	assert.IsType(t, expr.ExternalValue{}, ds.Data[0]["rows"])
}
