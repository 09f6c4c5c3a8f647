package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/harness"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <scenario.yaml|dir>",
		Short: "Offer a scenario's operations to a plan and show the result",
		Long: `Offer each step of a scenario to a fresh plan and print which steps the
source's engine accepted, the final mode and schema, and the wire query.
Nothing is sent to the source.

Given a directory, every scenario in it is run and summarized.

Example:
  fedplan plan ./scenarios/city_margin.yaml
  fedplan plan --catalog ./catalog ./scenarios`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runPlan(opts *RootOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to access scenario path", err)
	}
	if info.IsDir() {
		return runPlanSuite(s, path, cmd)
	}

	scenario, err := s.loadScenario(path)
	if err != nil {
		return err
	}
	s.out.VerboseLog("Running scenario %s (%d step(s))", scenario.Name, len(scenario.Steps))

	result, err := s.harness().Run(cmd.Context(), scenario)
	if err != nil {
		_ = s.out.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}
	return s.reportScenario(result)
}

func runPlanSuite(s *session, dir string, cmd *cobra.Command) error {
	suite, err := s.harness().RunAll(cmd.Context(), dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if err := s.out.Success(suiteReport{suite}); err != nil {
		return err
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", suite.Failed, suite.TotalScenarios))
	}
	return nil
}

// planReport renders a scenario result.
type planReport struct {
	*harness.Result
}

func (r planReport) String() string {
	var b strings.Builder
	for _, ev := range r.Trace {
		fmt.Fprintf(&b, "[%d] %s: %s", ev.Seq, ev.Op, ev.Outcome)
		if ev.Code != "" {
			fmt.Fprintf(&b, " %s", ev.Code)
		}
		if ev.Reason != "" {
			fmt.Fprintf(&b, " (%s)", ev.Reason)
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nmode:       %s\n", r.Mode)
	fmt.Fprintf(&b, "attributes: %s\n", strings.Join(r.Attributes, ", "))

	switch {
	case r.Request != nil:
		fmt.Fprintf(&b, "engine:     %s\n", r.Request.Engine)
		if r.Request.Query != "" {
			fmt.Fprintf(&b, "query:      %s\n", r.Request.Query)
		}
		if len(r.Request.Args) > 0 {
			fmt.Fprintf(&b, "args:       %v\n", r.Request.Args)
		}
		if r.Request.Source != "" && r.Request.Query == "" {
			fmt.Fprintf(&b, "source:     %s\n", r.Request.Source)
		}
		if len(r.Request.Columns) > 0 {
			fmt.Fprintf(&b, "columns:    %s\n", strings.Join(r.Request.Columns, ", "))
		}
		if r.Request.Limit > 0 {
			fmt.Fprintf(&b, "limit:      %d\n", r.Request.Limit)
		}
	case r.BuildError != "":
		fmt.Fprintf(&b, "query:      not built (%s)\n", r.BuildError)
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n✗ Expectations failed\n")
		for _, msg := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", msg)
		}
	}
	return b.String()
}

// suiteReport renders the results of a scenario directory.
type suiteReport struct {
	*harness.SuiteResult
}

func (r suiteReport) String() string {
	var b strings.Builder
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := r.Results[name]
		mark := "✓"
		if !res.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s (%d step(s), %d rejected, mode %s)\n", mark, name, len(res.Trace), res.Rejected(), res.Mode)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n%s\n  %s\n", f.ScenarioPath, f.Error)
	}
	fmt.Fprintf(&b, "\n%d scenario(s): %d passed, %d failed\n", r.TotalScenarios, r.Passed, r.Failed)
	return b.String()
}
