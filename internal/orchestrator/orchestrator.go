// Package orchestrator drives the request/response round trips of finished
// plans against a pluggable transport.
//
// Each operation is one unit of work: build the backend request, send it,
// await one response, apply one transform. Nothing is retried. A transport
// failure or a plan the backend cannot build propagates once to the caller.
//
// Cancellation follows the caller's context. A plan spec may also bound a
// call with "timeoutMs" in its context map.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fedplan/internal/delegate"
	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// ErrNoTransport is returned when a network operation is attempted without a
// configured transport.
var ErrNoTransport = errors.New("orchestrator: no transport configured")

// Transport sends one wire request and returns its tabular response.
type Transport interface {
	Send(ctx context.Context, req plan.Request) (plan.Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req plan.Request) (plan.Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	return f(ctx, req)
}

// Orchestrator executes and introspects plans. It holds no per-plan state
// and is safe for concurrent use when its transport is.
type Orchestrator struct {
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics
	ids       IDGenerator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTransport sets the transport used by Execute and Introspect.
func WithTransport(t Transport) Option {
	return func(o *Orchestrator) { o.transport = t }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets a prebuilt metrics set, e.g. one shared by several
// orchestrators.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithIDGenerator sets the request ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

// New creates an Orchestrator. Without WithMetrics the metrics are created
// unregistered.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}

// Execute runs a plan and returns its result.
//
// For a total or split plan every result row gets the raw plan behind it
// attached under the plan's data name. Rows whose key filter the backend
// cannot express get a null value; that is logged and does not fail the call.
func (o *Orchestrator) Execute(ctx context.Context, p *plan.Plan) (plan.Dataset, error) {
	if o.transport == nil {
		return plan.Dataset{}, ErrNoTransport
	}
	q, err := p.BuildQuery()
	if err != nil {
		return plan.Dataset{}, fmt.Errorf("build query for %s: %w", p.Engine(), err)
	}

	resp, err := o.send(ctx, q.Request)
	if err != nil {
		return plan.Dataset{}, err
	}

	ds, err := q.Transform(resp)
	if err != nil {
		return plan.Dataset{}, fmt.Errorf("transform %s response: %w", p.Engine(), err)
	}
	if p.Mode() == plan.ModeRaw {
		return ds, nil
	}

	out, err := p.AttachNested(ds)
	if err != nil {
		if !plan.IsRejection(err) {
			return plan.Dataset{}, fmt.Errorf("attach nested plans: %w", err)
		}
		o.logger.Warn("nested plan filter rejected",
			"engine", p.Engine(),
			"data_name", p.DataName(),
			"error", err,
		)
	}
	return out, nil
}

// Drill offers ops to the raw plan attached to one result row and runs the
// extended plan. nested is the row's value under the parent plan's data
// name. The operations from the first one the nested plan rejects onward
// are returned unevaluated.
func (o *Orchestrator) Drill(ctx context.Context, nested expr.Value, ops ...plan.Operation) (plan.Dataset, []plan.Operation, error) {
	e, rest, err := delegate.DelegateAll(expr.Lit(nested), ops...)
	if err != nil {
		return plan.Dataset{}, nil, err
	}
	p, err := delegate.EmbeddedPlan(e)
	if err != nil {
		return plan.Dataset{}, nil, err
	}
	if len(rest) > 0 {
		o.logger.Debug("drill operations left over",
			"engine", p.Engine(),
			"delegated", len(ops)-len(rest),
			"leftover", len(rest),
		)
	}
	ds, err := o.Execute(ctx, p)
	if err != nil {
		return plan.Dataset{}, nil, err
	}
	return ds, rest, nil
}

// Introspect returns p with its schema populated. A plan whose schema is
// already known is returned as is, without touching the transport.
func (o *Orchestrator) Introspect(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	if !p.NeedsIntrospect() {
		return p, nil
	}
	if o.transport == nil {
		return nil, ErrNoTransport
	}
	in, err := p.BuildIntrospection()
	if err != nil {
		return nil, fmt.Errorf("build introspection for %s: %w", p.Engine(), err)
	}

	resp, err := o.send(ctx, in.Request)
	if err != nil {
		return nil, err
	}

	attrs, err := in.Transform(resp)
	if err != nil {
		return nil, fmt.Errorf("transform %s schema: %w", p.Engine(), err)
	}
	o.logger.Debug("schema introspected",
		"engine", p.Engine(),
		"source", in.Request.Source,
		"attributes", len(attrs),
	)
	return p.WithIntrospection(attrs), nil
}

// Simulate returns one sample row for p without network access.
func (o *Orchestrator) Simulate(p *plan.Plan) (plan.Dataset, error) {
	ds, err := p.Simulate()
	if err != nil && !plan.IsRejection(err) {
		return plan.Dataset{}, err
	}
	if err != nil {
		o.logger.Warn("simulated nested plan rejected", "engine", p.Engine(), "error", err)
	}
	return ds, nil
}

// send performs one timed, logged transport call.
func (o *Orchestrator) send(ctx context.Context, req plan.Request) (plan.Response, error) {
	req.ID = o.ids.Generate()
	if timeout, ok := requestTimeout(req); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	o.logger.Debug("sending request",
		"request_id", req.ID,
		"engine", req.Engine,
		"kind", req.Kind,
		"source", req.Source,
	)

	start := time.Now()
	resp, err := o.transport.Send(ctx, req)
	o.metrics.observe(req.Engine, req.Kind, start, err)
	if err != nil {
		o.logger.Error("request failed",
			"request_id", req.ID,
			"engine", req.Engine,
			"kind", req.Kind,
			"error", err,
		)
		return plan.Response{}, fmt.Errorf("%s %s request %s: %w", req.Engine, req.Kind, req.ID, err)
	}

	o.logger.Info("request completed",
		"request_id", req.ID,
		"engine", req.Engine,
		"kind", req.Kind,
		"rows", len(resp.Rows),
		"elapsed", time.Since(start),
	)
	return resp, nil
}

// requestTimeout reads "timeoutMs" from the request context.
func requestTimeout(req plan.Request) (time.Duration, bool) {
	raw, ok := req.Context["timeoutMs"]
	if !ok {
		return 0, false
	}
	var ms float64
	switch v := raw.(type) {
	case float64:
		ms = v
	case int:
		ms = float64(v)
	case int64:
		ms = float64(v)
	default:
		return 0, false
	}
	if ms <= 0 {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}
