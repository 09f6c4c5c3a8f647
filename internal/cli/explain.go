package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/backend/sqlback"
	"github.com/roach88/fedplan/internal/plan"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Check bool
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <scenario.yaml>",
		Short: "Print the wire query of a scenario's final plan",
		Long: `Plan a scenario and print the request its final plan would send.

With --check, SQL queries are parsed with the PostgreSQL grammar and must
form a single SELECT statement.

Example:
  fedplan explain ./scenarios/city_margin.yaml --check`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "parse the generated SQL")

	return cmd
}

// explainReport is the output of the explain command.
type explainReport struct {
	Request *plan.Request `json:"request"`
	Checked bool          `json:"checked"`
}

func (r explainReport) String() string {
	var b strings.Builder
	req := r.Request
	fmt.Fprintf(&b, "-- engine: %s\n", req.Engine)
	if req.Query == "" {
		fmt.Fprintf(&b, "-- source: %s\n", req.Source)
		if len(req.Columns) > 0 {
			fmt.Fprintf(&b, "-- columns: %s\n", strings.Join(req.Columns, ", "))
		}
		if req.Limit > 0 {
			fmt.Fprintf(&b, "-- limit: %d\n", req.Limit)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "%s;\n", req.Query)
	for i, arg := range req.Args {
		fmt.Fprintf(&b, "-- $%d = %#v\n", i+1, arg)
	}
	if r.Checked {
		b.WriteString("-- ✓ query parses\n")
	}
	return b.String()
}

func runExplain(opts *ExplainOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
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
	if result.Request == nil {
		_ = s.out.Error(ErrCodeScenario, "no query: "+result.BuildError, nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no query for scenario %s", scenario.Name))
	}

	report := explainReport{Request: result.Request}
	if opts.Check && result.Request.Query != "" {
		if err := sqlback.Check(sqlback.Dialect(result.Request.Engine), result.Request.Query); err != nil {
			_ = s.out.Error(ErrCodeCheck, err.Error(), result.Request.Query)
			return WrapExitError(ExitFailure, "query check failed", err)
		}
		report.Checked = true
		s.out.VerboseLog("Query of %s parses as a single SELECT", scenario.Name)
	}
	return s.out.Success(report)
}
