package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/fedplan/internal/catalog"
	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// ErrNeedsIntrospection is returned when a scenario's source declares no
// attributes and the harness has no way to discover them.
var ErrNeedsIntrospection = errors.New("harness: source has no attributes")

// PrepareFunc completes a base plan before any step runs, typically by
// introspecting it.
type PrepareFunc func(ctx context.Context, p *plan.Plan) (*plan.Plan, error)

// Harness runs scenarios.
type Harness struct {
	catalog  *catalog.Catalog
	prepare  PrepareFunc
	planOpts []plan.Option
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithCatalog resolves SourceName against cat.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(h *Harness) { h.catalog = cat }
}

// WithPrepare runs fn on every base plan before the first step.
func WithPrepare(fn PrepareFunc) Option {
	return func(h *Harness) { h.prepare = fn }
}

// WithPlanOptions passes opts to plan.New.
func WithPlanOptions(opts ...plan.Option) Option {
	return func(h *Harness) { h.planOpts = append(h.planOpts, opts...) }
}

// WithLogger sets the logger. Steps are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run offers the scenario's steps to a fresh plan and returns the trace,
// the final wire query and the outcome of every expectation.
//
// Rejections are recorded, never returned. The returned error covers a
// scenario that cannot run at all: an unknown source, an expression that
// does not parse, or a fatal planner error.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cur, err := h.basePlan(ctx, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		next, text, err := h.offer(cur, step)
		var rej *plan.Rejection
		switch {
		case errors.As(err, &rej):
			result.AddTrace(text, rej, cur.Mode())
		case err != nil:
			return nil, fmt.Errorf("steps[%d] %s: %w", i, text, err)
		default:
			cur = next
			result.AddTrace(text, nil, cur.Mode())
		}

		ev := result.Trace[len(result.Trace)-1]
		h.logger.Debug("step offered",
			"scenario", scenario.Name,
			"seq", ev.Seq,
			"op", ev.Op,
			"outcome", ev.Outcome,
			"code", ev.Code,
		)

		if step.Expect != "" {
			got := ev.Outcome
			if ev.Code != "" {
				got = ev.Code
			}
			if got != step.Expect {
				result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %s", i, text, step.Expect, got))
			}
		}
	}

	result.plan = cur
	result.Mode = string(cur.Mode())
	result.Attributes = cur.Attributes().Names()

	q, err := cur.BuildQuery()
	if err != nil {
		result.BuildError = err.Error()
	} else {
		req := q.Request
		result.Request = &req
	}

	if scenario.Simulate {
		ds, err := cur.Simulate()
		if err != nil && !plan.IsRejection(err) {
			return nil, fmt.Errorf("simulate: %w", err)
		}
		if err != nil {
			h.logger.Warn("simulated nested plan rejected", "scenario", scenario.Name, "error", err)
		}
		for _, rec := range ds.Records() {
			for k, v := range rec {
				rec[k] = snapshotValue(v)
			}
			result.Simulation = append(result.Simulation, rec)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) basePlan(ctx context.Context, scenario *Scenario) (*plan.Plan, error) {
	var (
		p   *plan.Plan
		err error
	)
	if scenario.Source != nil {
		var spec plan.Spec
		spec, err = scenario.Source.Spec()
		if err == nil {
			p, err = plan.New(spec, h.planOpts...)
		}
	} else {
		if h.catalog == nil {
			return nil, fmt.Errorf("source %q: no catalog loaded", scenario.SourceName)
		}
		p, err = h.catalog.Plan(scenario.SourceName, h.planOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	if h.prepare != nil {
		if p, err = h.prepare(ctx, p); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}
	if p.NeedsIntrospect() {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, ErrNeedsIntrospection)
	}
	return p, nil
}

// offer parses one step and offers it to the plan. The
// returned text describes the step for the trace.
func (h *Harness) offer(p *plan.Plan, step Step) (*plan.Plan, string, error) {
	if step.Total != "" {
		text := fmt.Sprintf("total(%s)", step.Total)
		next, err := p.ToTotal(step.Total)
		return next, text, err
	}

	op, err := step.operation()
	if err != nil {
		return nil, step.describe(), err
	}
	next, err := p.Add(op)
	return next, op.String(), err
}

// operation parses the step's expression untyped. The plan types its
// references against its own schema when the operation is added.
func (s Step) operation() (plan.Operation, error) {
	switch {
	case s.Filter != "":
		e, err := expr.Parse(s.Filter, nil)
		if err != nil {
			return nil, err
		}
		return plan.Filter{Expr: e}, nil
	case s.Split != nil:
		e, err := expr.Parse(s.Split.Expr, nil)
		if err != nil {
			return nil, err
		}
		return plan.Split{Name: s.Split.Name, Expr: e, DataName: s.Split.DataName}, nil
	case s.Apply != nil:
		e, err := expr.Parse(s.Apply.Expr, nil)
		if err != nil {
			return nil, err
		}
		return plan.Apply{Name: s.Apply.Name, Expr: e}, nil
	case s.Sort != nil:
		e, err := expr.Parse(s.Sort.Expr, nil)
		if err != nil {
			return nil, err
		}
		return plan.Sort{Expr: e, Direction: plan.Direction(s.Sort.Direction)}, nil
	case s.Limit != nil:
		return plan.Limit{N: *s.Limit}, nil
	default:
		return nil, fmt.Errorf("empty step")
	}
}

// describe names a step whose expression did not parse.
func (s Step) describe() string {
	switch {
	case s.Filter != "":
		return "filter(" + s.Filter + ")"
	case s.Split != nil:
		return "split(" + s.Split.Name + ": " + s.Split.Expr + ")"
	case s.Apply != nil:
		return "apply(" + s.Apply.Name + ": " + s.Apply.Expr + ")"
	case s.Sort != nil:
		return "sort(" + s.Sort.Expr + ")"
	default:
		return "step"
	}
}

// snapshotValue reduces a value to the shapes canonical JSON accepts.
func snapshotValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64, int, int64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}
