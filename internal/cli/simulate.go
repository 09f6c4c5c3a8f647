package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/plan"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Produce a sample result for a scenario without contacting the source",
		Long: `Plan a scenario and produce one sample row for the final plan. Numbers
are replaced by a fixed sample value, strings by a placeholder and nested
plans by their description.

Example:
  fedplan simulate ./scenarios/sqlite_total.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSimulate(opts *RootOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	scenario, err := s.loadScenario(path)
	if err != nil {
		return err
	}

	result, err := s.harness().Run(cmd.Context(), scenario)
	if err != nil {
		_ = s.out.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}
	s.out.VerboseLog("Plan is %s after %d step(s), %d rejected", result.Mode, len(result.Trace), result.Rejected())

	ds, err := s.orchestrator(nil, nil).Simulate(result.Plan())
	if err != nil {
		return WrapExitError(ExitCommandError, "simulation failed", err)
	}
	return s.out.Success(newRecordsReport(ds))
}

// recordsReport renders a dataset.
type recordsReport struct {
	Attributes []string         `json:"attributes"`
	Records    []map[string]any `json:"records"`
}

func newRecordsReport(ds plan.Dataset) recordsReport {
	attrs := ds.Attributes
	if attrs == nil {
		attrs = []string{}
	}
	return recordsReport{Attributes: attrs, Records: ds.Records()}
}

func (r recordsReport) String() string {
	var b strings.Builder
	for i, rec := range r.Records {
		fmt.Fprintf(&b, "row %d\n", i+1)
		for _, name := range r.columns(rec) {
			fmt.Fprintf(&b, "  %s: %v\n", name, rec[name])
		}
	}
	fmt.Fprintf(&b, "%d row(s)\n", len(r.Records))
	return b.String()
}

// columns lists the declared attributes of rec first, then any others in
// name order.
func (r recordsReport) columns(rec map[string]any) []string {
	seen := make(map[string]bool, len(rec))
	var out []string
	for _, name := range r.Attributes {
		if _, ok := rec[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range rec {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
