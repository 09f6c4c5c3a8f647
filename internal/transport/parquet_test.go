package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/backend/parquetback"
	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
)

type event struct {
	City  string  `parquet:"city"`
	Price float64 `parquet:"price"`
	Qty   int64   `parquet:"qty"`
	Paid  bool    `parquet:"paid"`
}

func eventsFile(t *testing.T) (root, name string) {
	t.Helper()
	root = t.TempDir()
	name = "events.parquet"
	err := parquet.WriteFile(filepath.Join(root, name), []event{
		{City: "Oslo", Price: 12.5, Qty: 3, Paid: true},
		{City: "Bergen", Price: 4, Qty: 1, Paid: false},
		{City: "Oslo", Price: 7.25, Qty: 2, Paid: true},
	})
	require.NoError(t, err)
	return root, name
}

func TestParquetIntrospect(t *testing.T) {
	root, name := eventsFile(t)
	resp, err := NewParquetFiles(root).Send(context.Background(), plan.Request{Kind: plan.KindIntrospect, Source: name})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "type"}, resp.Columns)

	types := map[string]expr.Type{}
	for _, row := range resp.Rows {
		types[row[0].(string)] = parquetback.SemanticType(row[1].(string))
	}
	assert.Equal(t, map[string]expr.Type{
		"city":  expr.TypeString,
		"price": expr.TypeNumber,
		"qty":   expr.TypeNumber,
		"paid":  expr.TypeBoolean,
	}, types)
}

func TestParquetQuery(t *testing.T) {
	root, name := eventsFile(t)
	files := NewParquetFiles(root)

	resp, err := files.Send(context.Background(), plan.Request{
		Kind:    plan.KindQuery,
		Source:  name,
		Columns: []string{"qty", "city"},
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"qty", "city"}, resp.Columns)
	assert.Equal(t, [][]any{{int64(3), "Oslo"}, {int64(1), "Bergen"}}, resp.Rows)

	all, err := files.Send(context.Background(), plan.Request{Kind: plan.KindQuery, Source: name})
	require.NoError(t, err)
	assert.Len(t, all.Rows, 3)
	assert.Len(t, all.Columns, 4)
}

func TestParquetErrors(t *testing.T) {
	root, name := eventsFile(t)
	files := NewParquetFiles(root)
	ctx := context.Background()

	_, err := files.Send(ctx, plan.Request{Kind: plan.KindQuery, Source: "missing.parquet"})
	assert.Error(t, err)

	_, err = files.Send(ctx, plan.Request{Kind: plan.KindQuery, Source: name, Columns: []string{"nope"}})
	assert.ErrorContains(t, err, `no column "nope"`)

	_, err = files.Send(ctx, plan.Request{Kind: "delete", Source: name})
	assert.ErrorContains(t, err, "unknown request kind")
}

func TestParquetNativeTimes(t *testing.T) {
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	v, err := parquetNative(parquet.Int32Value(int32(day.Unix()/86400)), "DATE")
	require.NoError(t, err)
	assert.Equal(t, day, v)

	v, err = parquetNative(parquet.Int64Value(day.UnixMilli()), "TIMESTAMP(isAdjustedToUTC=true,unit=MILLIS)")
	require.NoError(t, err)
	assert.Equal(t, day, v)

	v, err = parquetNative(parquet.Int64Value(day.UnixMicro()), "TIMESTAMP(isAdjustedToUTC=true,unit=MICROS)")
	require.NoError(t, err)
	assert.Equal(t, day, v)

	v, err = parquetNative(parquet.Value{}, "INT64")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParquetPipeline(t *testing.T) {
	root, name := eventsFile(t)
	mux := NewMux()
	mux.Handle(parquetback.Engine, NewParquetFiles(root))
	orch := orchestrator.New(orchestrator.WithTransport(mux), orchestrator.WithLogger(discard()))

	p, err := plan.New(plan.Spec{Engine: parquetback.Engine, Source: plan.Source{DataSource: name}})
	require.NoError(t, err)
	p, err = orch.Introspect(context.Background(), p)
	require.NoError(t, err)
	p, err = p.Add(plan.Limit{N: 1})
	require.NoError(t, err)

	ds, err := orch.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, ds.Data, 1)
	assert.Equal(t, expr.String("Oslo"), ds.Data[0]["city"])
	assert.Equal(t, expr.Number(12.5), ds.Data[0]["price"])
	assert.Equal(t, expr.Bool(true), ds.Data[0]["paid"])
}
