package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedplan/internal/catalog"
	"github.com/roach88/fedplan/internal/plan"
)

// Scenario offers a sequence of operations to a plan over one source and
// records which of them the backend accepted.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source declares the data source inline.
	Source *catalog.SourceDecl `yaml:"source,omitempty"`

	// SourceName refers to a source in the catalog the harness runs with.
	// Exactly one of Source and SourceName is set.
	SourceName string `yaml:"sourceName,omitempty"`

	// Steps are offered to the plan in order. A rejected step leaves the
	// plan unchanged.
	Steps []Step `yaml:"steps"`

	// Simulate adds the simulated result of the final plan to the result.
	Simulate bool `yaml:"simulate,omitempty"`

	// Assertions validate the trace and the final query.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Drill continues into the raw plan behind one row of the executed
	// result. Planning ignores it.
	Drill *Drill `yaml:"drill,omitempty"`
}

// Drill offers further steps to the raw plan a total or split attaches to
// each result row.
type Drill struct {
	// Row is the zero-based index of the result row.
	Row int `yaml:"row"`

	// Steps are offered in order. Total steps are not allowed.
	Steps []Step `yaml:"steps"`
}

// Operations parses the drill steps.
func (d *Drill) Operations() ([]plan.Operation, error) {
	ops := make([]plan.Operation, 0, len(d.Steps))
	for i, step := range d.Steps {
		op, err := step.operation()
		if err != nil {
			return nil, fmt.Errorf("drill steps[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Step is one offered operation. Exactly one of the operation fields is set.
// Expressions use the parse syntax and are typed against the plan schema at
// the time the step runs.
type Step struct {
	Filter string     `yaml:"filter,omitempty"`
	Split  *SplitStep `yaml:"split,omitempty"`
	Apply  *ApplyStep `yaml:"apply,omitempty"`
	Sort   *SortStep  `yaml:"sort,omitempty"`
	Limit  *int       `yaml:"limit,omitempty"`

	// Total converts the plan to total mode with this data name.
	Total string `yaml:"total,omitempty"`

	// Expect is "accepted" or a rejection code. Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// SplitStep groups by an expression.
type SplitStep struct {
	Name     string `yaml:"name"`
	Expr     string `yaml:"expr"`
	DataName string `yaml:"dataName,omitempty"`
}

// ApplyStep adds a named attribute.
type ApplyStep struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// SortStep orders the output.
type SortStep struct {
	Expr      string `yaml:"expr"`
	Direction string `yaml:"direction,omitempty"`
}

// Assertion validates the result.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "trace_contains": a step whose op contains Op, with Outcome if set
	//   - "trace_count": exactly Count steps with Outcome
	//   - "query_contains": the final query text contains Text
	//   - "final_mode": the final plan is in Mode
	Type string `yaml:"type"`

	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Text    string `yaml:"text,omitempty"`
	Mode    string `yaml:"mode,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertQueryContains = "query_contains"
	AssertFinalMode     = "final_mode"
)

var rejectionCodes = []plan.RejectionCode{
	plan.RejectCapability,
	plan.RejectMode,
	plan.RejectUnresolved,
	plan.RejectType,
	plan.RejectKeyCollision,
	plan.RejectSortAfterLimit,
	plan.RejectInvalid,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads a scenario and resolves a relative inline
// dataSource against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if src := scenario.Source; src != nil && src.DataSource != "" && basePath != "" && !filepath.IsAbs(src.DataSource) {
		src.DataSource = filepath.Join(basePath, src.DataSource)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Source == nil) == (s.SourceName == "") {
		return fmt.Errorf("exactly one of source and sourceName is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	if s.Drill != nil {
		return validateDrill(s.Drill)
	}
	return nil
}

func validateDrill(d *Drill) error {
	if d.Row < 0 {
		return fmt.Errorf("drill: row must be non-negative")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("drill: steps list is required and must be non-empty")
	}
	for i, step := range d.Steps {
		if step.Total != "" {
			return fmt.Errorf("drill steps[%d]: total is not allowed", i)
		}
		if err := validateStep(step); err != nil {
			return fmt.Errorf("drill steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, present := range []bool{
		step.Filter != "",
		step.Split != nil,
		step.Apply != nil,
		step.Sort != nil,
		step.Limit != nil,
		step.Total != "",
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of filter, split, apply, sort, limit and total is required")
	}

	switch {
	case step.Split != nil && step.Split.Expr == "":
		return fmt.Errorf("split: expr is required")
	case step.Apply != nil && step.Apply.Expr == "":
		return fmt.Errorf("apply: expr is required")
	case step.Sort != nil && step.Sort.Expr == "":
		return fmt.Errorf("sort: expr is required")
	}
	if step.Sort != nil {
		switch plan.Direction(step.Sort.Direction) {
		case "", plan.Ascending, plan.Descending:
		default:
			return fmt.Errorf("sort: unknown direction %q", step.Sort.Direction)
		}
	}

	if step.Expect == "" || step.Expect == OutcomeAccepted {
		return nil
	}
	for _, code := range rejectionCodes {
		if step.Expect == string(code) {
			return nil
		}
	}
	return fmt.Errorf("expect: unknown outcome %q", step.Expect)
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Outcome != OutcomeAccepted && a.Outcome != OutcomeRejected {
			return fmt.Errorf("assertions[%d]: outcome must be accepted or rejected for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertQueryContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for query_contains", index)
		}
	case AssertFinalMode:
		switch plan.Mode(a.Mode) {
		case plan.ModeRaw, plan.ModeTotal, plan.ModeSplit:
		default:
			return fmt.Errorf("assertions[%d]: unknown mode %q for final_mode", index, a.Mode)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
