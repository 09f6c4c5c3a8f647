package harness

import (
	"github.com/roach88/fedplan/internal/plan"
)

// Step outcomes recorded in the trace.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// TraceEvent records how the plan answered one offered operation.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"`

	// Code is the rejection code. Empty when the step was accepted.
	Code string `json:"code,omitempty"`

	// Reason is the rejection message. It is left out of golden snapshots.
	Reason string `json:"reason,omitempty"`

	// Mode is the plan mode after the step.
	Mode string `json:"mode"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Mode and Attributes describe the final plan.
	Mode       string   `json:"mode"`
	Attributes []string `json:"attributes"`

	// Request is the wire query of the final plan. Nil when the plan still
	// needs introspection or the backend could not build a query.
	Request *plan.Request `json:"request,omitempty"`

	// BuildError is set when building the wire query failed.
	BuildError string `json:"build_error,omitempty"`

	// Simulation holds the simulated rows when the scenario asks for them.
	Simulation []map[string]any `json:"simulation,omitempty"`

	plan *plan.Plan
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		Attributes: []string{},
	}
}

// Plan returns the final plan.
func (r *Result) Plan() *plan.Plan { return r.plan }

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome. A nil rejection means the step was accepted.
func (r *Result) AddTrace(op string, rej *plan.Rejection, mode plan.Mode) {
	ev := TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Op:      op,
		Outcome: OutcomeAccepted,
		Mode:    string(mode),
	}
	if rej != nil {
		ev.Outcome = OutcomeRejected
		ev.Code = string(rej.Code)
		ev.Reason = rej.Message
	}
	r.Trace = append(r.Trace, ev)
}

// Rejected counts the rejected steps.
func (r *Result) Rejected() int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Outcome == OutcomeRejected {
			n++
		}
	}
	return n
}
