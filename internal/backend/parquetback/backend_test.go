package parquetback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

var eventAttributes = plan.Attributes{
	{Name: "at", Type: expr.TypeTime},
	{Name: "city", Type: expr.TypeString},
	{Name: "price", Type: expr.TypeNumber},
}

func newPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := plan.New(plan.Spec{
		Engine:     Engine,
		Attributes: eventAttributes,
		Source:     plan.Source{DataSource: "events.parquet"},
	})
	require.NoError(t, err)
	return p
}

func TestNewNeedsPath(t *testing.T) {
	_, err := plan.New(plan.Spec{Engine: Engine})
	assert.ErrorContains(t, err, "dataSource")
}

func TestOnlyLimitIsAccepted(t *testing.T) {
	p := newPlan(t)
	env := eventAttributes.Env()

	rejected := []plan.Operation{
		plan.Filter{Expr: expr.MustParse(`$city == "Oslo"`, env)},
		plan.Split{Name: "City", Expr: expr.MustParse("$city", env), DataName: "rows"},
		plan.Apply{Name: "double", Expr: expr.MustParse("$price * 2", env)},
		plan.Sort{Expr: expr.MustParse("$price", env)},
		plan.Limit{N: 0},
	}
	for _, op := range rejected {
		_, err := p.Add(op)
		assert.True(t, plan.IsRejection(err), "%s: %v", op, err)
	}

	_, err := p.ToTotal("all")
	assert.Equal(t, plan.RejectCapability, plan.RejectionCodeOf(err))

	limited, err := p.AddAll(plan.Limit{N: 20}, plan.Limit{N: 5})
	require.NoError(t, err)
	l, ok := limited.LimitSpec()
	require.True(t, ok)
	assert.Equal(t, 5, l.N)
}

func TestBuildQuery(t *testing.T) {
	p, err := newPlan(t).Add(plan.Limit{N: 2})
	require.NoError(t, err)

	q, err := p.BuildQuery()
	require.NoError(t, err)
	assert.Equal(t, plan.Request{
		Engine:  Engine,
		Kind:    plan.KindQuery,
		Source:  "events.parquet",
		Columns: []string{"at", "city", "price"},
		Limit:   2,
	}, q.Request)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ds, err := q.Transform(plan.Response{
		Columns: []string{"at", "city", "price"},
		Rows: [][]any{
			{at, "Oslo", int64(12)},
			{"2024-03-02T00:00:00Z", nil, 3.5},
		},
	})
	require.NoError(t, err)
	require.Len(t, ds.Data, 2)
	assert.Equal(t, expr.Time(at), ds.Data[0]["at"])
	assert.Equal(t, expr.String("Oslo"), ds.Data[0]["city"])
	assert.Equal(t, expr.Number(12), ds.Data[0]["price"])
	assert.True(t, expr.ValueEqual(expr.Time(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)), ds.Data[1]["at"]))
	assert.Equal(t, expr.Null{}, ds.Data[1]["city"])

	_, err = q.Transform(plan.Response{Columns: []string{"at"}, Rows: [][]any{{"soon"}}})
	assert.Error(t, err)
}

func TestBuildIntrospection(t *testing.T) {
	p, err := plan.New(plan.Spec{Engine: Engine, Source: plan.Source{DataSource: "events.parquet"}})
	require.NoError(t, err)
	require.True(t, p.NeedsIntrospect())

	in, err := p.BuildIntrospection()
	require.NoError(t, err)
	assert.Equal(t, plan.KindIntrospect, in.Request.Kind)
	assert.Equal(t, "events.parquet", in.Request.Source)

	attrs, err := in.Transform(plan.Response{
		Columns: []string{"name", "type"},
		Rows: [][]any{
			{"at", "TIMESTAMP(isAdjustedToUTC=true,unit=NANOS)"},
			{"city", "STRING"},
			{"price", "DOUBLE"},
			{"qty", "INT(32,true)"},
			{"ok", "BOOLEAN"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, plan.Attributes{
		{Name: "at", Type: expr.TypeTime},
		{Name: "city", Type: expr.TypeString},
		{Name: "price", Type: expr.TypeNumber},
		{Name: "qty", Type: expr.TypeNumber},
		{Name: "ok", Type: expr.TypeBoolean},
	}, attrs)

	_, err = in.Transform(plan.Response{Rows: [][]any{{"", "STRING"}}})
	assert.Error(t, err)
}

func TestSemanticType(t *testing.T) {
	tests := map[string]expr.Type{
		"INT64":        expr.TypeNumber,
		"FLOAT":        expr.TypeNumber,
		"DECIMAL(9,2)": expr.TypeNumber,
		"DATE":         expr.TypeTime,
		"BYTE_ARRAY":   expr.TypeString,
		"UUID":         expr.TypeString,
		"INTERVAL":     expr.TypeString,
	}
	for in, want := range tests {
		assert.Equal(t, want, SemanticType(in), in)
	}
}
