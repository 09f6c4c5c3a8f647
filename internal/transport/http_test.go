package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
	"github.com/roach88/fedplan/internal/testutil"
)

func newGateway(t *testing.T, tr orchestrator.Transport, opts ...ServerOption) *httptest.Server {
	t.Helper()
	opts = append([]ServerOption{WithServerLogger(discard())}, opts...)
	srv := httptest.NewServer(NewServer(tr, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRoundTrip(t *testing.T) {
	mux := NewMux()
	mux.Handle("sqlite", openSales(t))
	srv := newGateway(t, mux)

	client := NewHTTPClient(srv.URL+"/", srv.Client())
	resp, err := client.Send(context.Background(), plan.Request{
		ID:     "req-1",
		Engine: "sqlite",
		Kind:   plan.KindQuery,
		Query:  `SELECT "city", "price" FROM "sales" WHERE "price" > ? ORDER BY "price"`,
		Args:   []any{15},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "price"}, resp.Columns)
	assert.Equal(t, [][]any{{"NYC", 20.0}, {"Paris", 30.0}}, resp.Rows)
}

func TestHTTPErrors(t *testing.T) {
	mux := NewMux()
	mux.Handle("broken", orchestrator.TransportFunc(func(context.Context, plan.Request) (plan.Response, error) {
		return plan.Response{}, errors.New("database is down")
	}))
	srv := newGateway(t, mux)
	client := NewHTTPClient(srv.URL, nil)
	ctx := context.Background()

	_, err := client.Send(ctx, plan.Request{Engine: "broken", Kind: plan.KindQuery})
	assert.ErrorContains(t, err, "gateway returned 502: database is down")

	_, err = client.Send(ctx, plan.Request{Engine: "nowhere", Kind: plan.KindQuery})
	assert.ErrorContains(t, err, "gateway returned 404")

	_, err = client.Send(ctx, plan.Request{Kind: plan.KindQuery})
	assert.ErrorContains(t, err, "gateway returned 400: request has no engine")

	_, err = client.Send(ctx, plan.Request{Engine: "broken", Kind: "drop"})
	assert.ErrorContains(t, err, "unknown request kind drop")

	hresp, err := http.Post(srv.URL+QueryPath, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer hresp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, hresp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&body))
	assert.Contains(t, body.Error, "invalid request body")
}

func TestHTTPClientCancellation(t *testing.T) {
	srv := newGateway(t, NewMux())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPClient(srv.URL, nil).Send(ctx, plan.Request{Engine: "sqlite", Kind: plan.KindQuery})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServerHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fedplan_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	srv := newGateway(t, NewMux(), WithGatherer(reg))

	hresp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	hresp.Body.Close()
	assert.Equal(t, http.StatusOK, hresp.StatusCode)

	hresp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer hresp.Body.Close()
	assert.Equal(t, http.StatusOK, hresp.StatusCode)
	var sb bytes.Buffer
	_, err = sb.ReadFrom(hresp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "fedplan_test_total 1")
}

func TestGatewayCarriesRequestIDs(t *testing.T) {
	rec := testutil.NewRecordingTransport().Respond("sqlite", plan.KindQuery, plan.Response{
		Columns: []string{"country", "price"},
		Rows:    [][]any{{"US", 3.0}},
	})
	srv := newGateway(t, rec)
	orch := orchestrator.New(
		orchestrator.WithTransport(NewHTTPClient(srv.URL, srv.Client())),
		orchestrator.WithLogger(discard()),
		orchestrator.WithIDGenerator(testutil.NewSequenceIDs("gw")),
	)

	p, err := plan.New(plan.Spec{
		Engine: "sqlite",
		Source: plan.Source{Table: "sales"},
		Attributes: plan.Attributes{
			{Name: "country", Type: expr.TypeString},
			{Name: "price", Type: expr.TypeNumber},
		},
	})
	require.NoError(t, err)

	for range 2 {
		ds, err := orch.Execute(context.Background(), p)
		require.NoError(t, err)
		require.Len(t, ds.Data, 1)
		assert.Equal(t, expr.Number(3), ds.Data[0]["price"])
	}

	reqs := rec.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "gw-1", reqs[0].ID)
	assert.Equal(t, "gw-2", reqs[1].ID)
	assert.Equal(t, `SELECT "country", "price" FROM "sales"`, reqs[0].Query)
}
