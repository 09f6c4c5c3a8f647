package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/roach88/fedplan/internal/backend/parquetback"
	_ "github.com/roach88/fedplan/internal/backend/sqlback"
	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

const salesCatalog = `
package test

source: sales: {
	engine:           "postgres"
	table:            "analytics.sales"
	timeAttribute:    "time"
	exactResultsOnly: true
	attributes: {
		time:    "TIME"
		country: "STRING"
		price:   "NUMBER"
	}
	filter: "$country == \"US\""
	context: timeoutMs: 5000
}

source: events: {
	engine:     "parquet"
	dataSource: "events.parquet"
}
`

func writeCatalog(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"sources.cue": salesCatalog})

	c, errs := Load(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 1, c.FileCount)
	assert.Equal(t, []string{"sales", "events"}, c.Names())

	d, ok := c.Decl("sales")
	require.True(t, ok)
	assert.Equal(t, []AttributeDecl{
		{Name: "time", Type: "TIME"},
		{Name: "country", Type: "STRING"},
		{Name: "price", Type: "NUMBER"},
	}, d.Attributes)
	assert.EqualValues(t, 5000, d.Context["timeoutMs"])

	p, err := c.Plan("sales")
	require.NoError(t, err)
	assert.Equal(t, "postgres", p.Engine())
	assert.Equal(t, "analytics.sales", p.Source().Table)
	assert.True(t, p.Source().ExactResultsOnly)
	assert.Equal(t, `($country == "US")`, p.Filter().String())
	assert.False(t, p.NeedsIntrospect())

	events, err := c.Plan("events")
	require.NoError(t, err)
	assert.True(t, events.NeedsIntrospect())

	_, err = c.Plan("missing")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestLoadDirectoryErrors(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assertCode(t, ErrCodeNotFound, errs[0])

	_, errs = Load(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	assertCode(t, ErrCodeNoFiles, errs[0])

	dir := writeCatalog(t, map[string]string{"bad.cue": "package test\nsource: {"})
	_, errs = Load(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assertCode(t, ErrCodeLoadFailed, errs[0])

	dir = writeCatalog(t, map[string]string{"empty.cue": "package test\nother: 1\n"})
	_, errs = Load(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assertCode(t, ErrCodeGeneric, errs[0])
}

func TestLoadModes(t *testing.T) {
	const bad = `
package test

source: a: { table: "t" }
source: b: { engine: "sqlite", table: "t", attributes: { x: "FLOAT" } }
source: c: { engine: "sqlite", table: "t", attributes: { x: "NUMBER" }, filter: "$x +" }
source: d: { engine: "sqlite", table: "t" }
`
	dir := writeCatalog(t, map[string]string{"bad.cue": bad})

	_, errs := Load(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assertCode(t, ErrCodeEngine, errs[0])

	c, errs := Load(dir, LoadModeCollectAll)
	require.Len(t, errs, 3)
	assertCode(t, ErrCodeEngine, errs[0])
	assertCode(t, ErrCodeAttributes, errs[1])
	assertCode(t, ErrCodeFilter, errs[2])
	assert.Equal(t, []string{"d"}, c.Names())

	var le *LoadError
	require.True(t, errors.As(errs[1], &le))
	assert.True(t, le.Pos.IsValid(), "position should point into bad.cue")
	assert.Contains(t, le.Error(), "bad.cue")
}

func TestCompileSource(t *testing.T) {
	compile := func(t *testing.T, src string) (SourceDecl, error) {
		t.Helper()
		v := cuecontext.New().CompileString(src, cue.Filename("inline.cue"))
		require.NoError(t, v.Err())
		return CompileSource(v.LookupPath(cue.ParsePath("source.s")))
	}

	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"engine type", `source: s: { engine: 3 }`, "engine"},
		{"unregistered engine", `source: s: { engine: "oracle", table: "t" }`, "engine"},
		{"sql without table", `source: s: { engine: "sqlite" }`, "engine"},
		{"bool field", `source: s: { engine: "sqlite", table: "t", allowEternity: "yes" }`, "allowEternity"},
		{"attribute type", `source: s: { engine: "sqlite", table: "t", attributes: { x: 1 } }`, "attributes.x"},
		{"time attribute", `source: s: { engine: "sqlite", table: "t", timeAttribute: "x", attributes: { x: "NUMBER" } }`, "timeAttribute"},
		{"non boolean filter", `source: s: { engine: "sqlite", table: "t", attributes: { x: "NUMBER" }, filter: "$x + 1" }`, "filter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	d, err := compile(t, `source: s: {
		engine: "sqlite"
		table: "t"
		attributeOverrides: { price: "NUMBER" }
		allowEternity: true
	}`)
	require.NoError(t, err)
	assert.Equal(t, "s", d.Name)
	assert.Nil(t, d.Attributes)
	assert.True(t, d.AllowEternity)
	spec, err := d.Spec()
	require.NoError(t, err)
	assert.Equal(t, plan.Attributes{{Name: "price", Type: expr.TypeNumber}}, spec.AttributeOverrides)
}

func TestNewCatalog(t *testing.T) {
	decl := SourceDecl{
		Name:       "local",
		Engine:     "sqlite",
		Table:      "sales",
		Attributes: []AttributeDecl{{Name: "price", Type: "NUMBER"}},
	}
	c, err := New(decl)
	require.NoError(t, err)
	p, err := c.Plan("local")
	require.NoError(t, err)
	assert.Equal(t, plan.Attributes{{Name: "price", Type: expr.TypeNumber}}, p.Attributes())

	_, err = New(decl, decl)
	assert.ErrorContains(t, err, "declared twice")

	_, err = New(SourceDecl{Engine: "sqlite", Table: "t"})
	assert.ErrorContains(t, err, "name is required")

	_, err = New(SourceDecl{Name: "x", Engine: "sqlite", Table: "t",
		Attributes: []AttributeDecl{{Name: "a", Type: "NUMBER"}, {Name: "a", Type: "STRING"}}})
	assert.ErrorContains(t, err, "declared twice")
}

func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	var le *LoadError
	require.True(t, errors.As(err, &le), "got %T: %v", err, err)
	assert.Equal(t, code, le.Code, le.Message)
}
