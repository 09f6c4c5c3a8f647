package cli

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/plan"
	"github.com/roach88/fedplan/internal/testutil"
	"github.com/roach88/fedplan/internal/transport"
)

const catalogScenario = `
name: us_total_from_catalog
description: The sales source is introspected before planning.
sourceName: sales
steps:
  - filter: '$country == "US"'
  - total: all
  - apply: {name: n, expr: $main.count()}
  - apply: {name: revenue, expr: $main.sum($price)}
`

const drillScenario = `
name: us_drill
description: Rows behind the US total above 15.
source:
  name: sales
  engine: sqlite
  table: sales
  attributes:
    - {name: country, type: STRING}
    - {name: price, type: NUMBER}
steps:
  - filter: '$country == "US"'
  - total: all
  - apply: {name: n, expr: $main.count()}
drill:
  row: 0
  steps:
    - filter: '$price > 15'
`

func TestQueryCommand_SQLite(t *testing.T) {
	db := salesDB(t)
	path := writeFile(t, t.TempDir(), "total.yaml", totalScenario)

	out, diag, err := execute(t, "--format", "json", "-v", "--sqlite", db, "query", "--allow-partial", path)
	require.NoError(t, err)
	assert.Contains(t, diag, "Step 5 filter(($n > 3)) rejected (MODE); not evaluated")

	var resp struct {
		Data recordsReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Records, 1)
	rec := resp.Data.Records[0]
	assert.EqualValues(t, 2, rec["n"])
	assert.EqualValues(t, 15, rec["avg"])
	assert.Equal(t, `ExternalRaw(($country == "US"))`, rec["all"])
}

func TestQueryCommand_IntrospectsCatalogSource(t *testing.T) {
	db := salesDB(t)
	dir := t.TempDir()
	writeFile(t, dir, "sources.cue", validCatalog)
	path := writeFile(t, t.TempDir(), "catalog.yaml", catalogScenario)

	out, _, err := execute(t, "--catalog", dir, "--sqlite", db, "query", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  n: 2\n")
	assert.Contains(t, out, "  revenue: 30\n")
	assert.Contains(t, out, "1 row(s)")
}

func TestQueryCommand_Gateway(t *testing.T) {
	rec := testutil.NewRecordingTransport().Respond("sqlite", plan.KindQuery, plan.Response{
		Columns: []string{"n", "avg"},
		Rows:    [][]any{{2, 15.0}},
	})
	srv := httptest.NewServer(transport.NewServer(rec).Handler())
	t.Cleanup(srv.Close)
	path := writeFile(t, t.TempDir(), "total.yaml", totalScenario)

	out, _, err := execute(t, "--gateway", srv.URL, "query", "--allow-partial", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  n: 2\n  avg: 15\n")

	reqs := rec.Requests()
	require.Len(t, reqs, 1)
	assert.NotEmpty(t, reqs[0].ID)
	assert.Contains(t, reqs[0].Query, `COUNT(*) AS "n"`)
	assert.Equal(t, []any{"US"}, reqs[0].Args)
}

func TestQueryCommand_RejectedStepsFail(t *testing.T) {
	rec := testutil.NewRecordingTransport()
	srv := httptest.NewServer(transport.NewServer(rec).Handler())
	t.Cleanup(srv.Close)
	path := writeFile(t, t.TempDir(), "total.yaml", totalScenario)

	out, _, err := execute(t, "--format", "json", "--gateway", srv.URL, "query", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 step(s) rejected")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	assert.Equal(t, []any{"step 5 filter(($n > 3)) rejected (MODE)"}, resp.Error.Details)
	assert.Empty(t, rec.Requests())
}

func TestQueryCommand_Drill(t *testing.T) {
	db := salesDB(t)
	path := writeFile(t, t.TempDir(), "drill.yaml", drillScenario)

	out, _, err := execute(t, "--sqlite", db, "query", path)
	require.NoError(t, err)
	assert.Equal(t, "row 1\n  country: US\n  price: 20\n1 row(s)\n", out)
}

func TestQueryCommand_DrillLeftover(t *testing.T) {
	db := salesDB(t)
	doc := drillScenario + "    - limit: 1\n    - sort: {expr: $price}\n"
	path := writeFile(t, t.TempDir(), "drill.yaml", doc)

	out, _, err := execute(t, "--format", "json", "--sqlite", db, "query", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	assert.Equal(t, []any{"sort($price ascending)"}, resp.Error.Details)

	out, diag, err := execute(t, "-v", "--sqlite", db, "query", "--allow-partial", path)
	require.NoError(t, err)
	assert.Contains(t, diag, "not delegated; not evaluated")
	assert.Contains(t, out, "1 row(s)")
}

func TestQueryCommand_DrillNeedsNestedPlan(t *testing.T) {
	db := salesDB(t)
	doc := strings.Replace(drillScenario, "  - total: all\n  - apply: {name: n, expr: $main.count()}\n", "", 1)
	path := writeFile(t, t.TempDir(), "drill.yaml", doc)

	_, _, err := execute(t, "--sqlite", db, "query", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "drill needs a total or split plan")
}

func TestQueryCommand_NoTransportForEngine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "total.yaml", totalScenario)

	_, _, err := execute(t, "query", "--allow-partial", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "query failed")
}

func TestIntrospectCommand(t *testing.T) {
	db := salesDB(t)
	dir := t.TempDir()
	writeFile(t, dir, "sources.cue", validCatalog)

	out, _, err := execute(t, "--catalog", dir, "--sqlite", db, "introspect", "sales")
	require.NoError(t, err)
	assert.Contains(t, out, "sales (sqlite)\n")
	assert.Contains(t, out, "country")
	assert.Contains(t, out, "STRING")
	assert.Contains(t, out, "NUMBER")

	// Declared attributes are answered without a transport round trip.
	out, _, err = execute(t, "--format", "json", "--catalog", dir, "introspect", "orders")
	require.NoError(t, err)
	var resp struct {
		Data schemaReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "postgres", resp.Data.Engine)
	assert.Equal(t, []string{"id", "total"}, resp.Data.Attributes.Names())
}

func TestIntrospectCommand_Errors(t *testing.T) {
	_, _, err := execute(t, "introspect", "sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "introspect requires --catalog")

	dir := t.TempDir()
	writeFile(t, dir, "sources.cue", validCatalog)
	_, _, err = execute(t, "--catalog", dir, "introspect", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown source")
}
