package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.Op, ev.Outcome)
			if ev.Code != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Code)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// assertTraceContains checks that some step's op contains the text, with the
// given outcome when one is set.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if strings.Contains(ev.Op, a.Op) && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			return nil
		}
	}
	expected := "step " + a.Op
	if a.Outcome != "" {
		expected += " " + a.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Outcome == a.Outcome {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s steps", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d %s steps", count, a.Outcome),
			Trace:    trace,
		}
	}
	return nil
}

func assertQueryContains(result *Result, a Assertion) error {
	if result.Request == nil {
		actual := "no query was built"
		if result.BuildError != "" {
			actual = result.BuildError
		}
		return &AssertionError{Type: AssertQueryContains, Expected: fmt.Sprintf("query containing %q", a.Text), Actual: actual}
	}
	if !strings.Contains(result.Request.Query, a.Text) {
		return &AssertionError{
			Type:     AssertQueryContains,
			Expected: fmt.Sprintf("query containing %q", a.Text),
			Actual:   result.Request.Query,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertQueryContains:
			err = assertQueryContains(result, assertion)
		case AssertFinalMode:
			if result.Mode != assertion.Mode {
				err = &AssertionError{Type: AssertFinalMode, Expected: assertion.Mode, Actual: result.Mode}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
