package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fedplan/internal/expr"
)

// Snapshot is the golden form of a scenario result. Rejection messages are
// left out so rewording a message does not churn every golden file.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		m := map[string]any{
			"seq":     ev.Seq,
			"op":      ev.Op,
			"outcome": ev.Outcome,
			"mode":    ev.Mode,
		}
		if ev.Code != "" {
			m["code"] = ev.Code
		}
		trace[i] = m
	}

	attrs := make([]any, len(s.Result.Attributes))
	for i, name := range s.Result.Attributes {
		attrs[i] = name
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"mode":          s.Result.Mode,
		"attributes":    attrs,
	}
	if req := s.Result.Request; req != nil {
		r := map[string]any{
			"engine": req.Engine,
			"kind":   req.Kind,
			"source": req.Source,
		}
		if req.Query != "" {
			r["query"] = req.Query
		}
		if len(req.Args) > 0 {
			args := make([]any, len(req.Args))
			for i, a := range req.Args {
				args[i] = snapshotValue(a)
			}
			r["args"] = args
		}
		if len(req.Columns) > 0 {
			cols := make([]any, len(req.Columns))
			for i, c := range req.Columns {
				cols[i] = c
			}
			r["columns"] = cols
		}
		if req.Limit > 0 {
			r["limit"] = req.Limit
		}
		out["request"] = r
	}
	if s.Result.BuildError != "" {
		out["build_error"] = s.Result.BuildError
	}
	if len(s.Result.Simulation) > 0 {
		rows := make([]any, len(s.Result.Simulation))
		for i, rec := range s.Result.Simulation {
			rows[i] = rec
		}
		out["simulation"] = rows
	}
	return out
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := Snapshot{ScenarioName: name, Result: result}
	return expr.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
