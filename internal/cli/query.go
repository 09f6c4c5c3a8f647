package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/harness"
	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	AllowPartial bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <scenario.yaml>",
		Short: "Plan a scenario and run it against its source",
		Long: `Plan a scenario, send the final plan's request to the source's engine
and print the result. Sources declared without attributes are introspected
first.

A rejected step is not evaluated anywhere, so by default a scenario with
rejected steps fails without querying. With --allow-partial the accepted
prefix is run and the rejected steps are reported on stderr with --verbose.

A scenario with a drill section prints the rows behind one result row
instead: the drill steps are pushed into that row's raw plan, which is then
queried. Drill steps the raw plan rejects follow the same rule.

Engines are reached directly (--sqlite, --dsn, --parquet-root) or through a
gateway started with "fedplan serve" (--gateway).

Example:
  fedplan query --sqlite ./shop.db ./scenarios/sqlite_total.yaml
  fedplan query --gateway http://localhost:8080 ./scenarios/city_margin.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.AllowPartial, "allow-partial", false, "run the plan even when steps were rejected")

	return cmd
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	scenario, err := s.loadScenario(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	mux, err := s.openTransport(ctx)
	if err != nil {
		_ = s.out.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open transport", err)
	}
	defer func() {
		if err := mux.Close(); err != nil {
			s.logger.Error("error closing transport", "error", err)
		}
	}()

	o := s.orchestrator(mux, nil)
	result, err := s.harness(harness.WithPrepare(introspectIfNeeded(o))).Run(ctx, scenario)
	if err != nil {
		_ = s.out.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}
	if !result.Pass {
		_ = s.out.Error(ErrCodeScenario, "scenario expectations failed", result.Errors)
		return NewExitError(ExitFailure, "scenario expectations failed")
	}

	var rejected []string
	for _, ev := range result.Trace {
		if ev.Outcome == harness.OutcomeRejected {
			rejected = append(rejected, fmt.Sprintf("step %d %s rejected (%s)", ev.Seq, ev.Op, ev.Code))
			s.out.VerboseLog("Step %d %s rejected (%s); not evaluated", ev.Seq, ev.Op, ev.Code)
		}
	}
	if len(rejected) > 0 && !opts.AllowPartial {
		msg := fmt.Sprintf("%d step(s) rejected; rerun with --allow-partial to query the accepted steps", len(rejected))
		_ = s.out.Error(ErrCodeScenario, msg, rejected)
		return NewExitError(ExitFailure, msg)
	}

	final := result.Plan()
	ds, err := o.Execute(ctx, final)
	if err != nil {
		_ = s.out.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "query failed", err)
	}
	if scenario.Drill != nil {
		return runDrill(s, opts, o, scenario.Drill, final, ds, cmd)
	}
	return s.out.Success(newRecordsReport(ds))
}

// runDrill runs the drill steps against the raw plan behind one row of ds.
func runDrill(s *session, opts *QueryOptions, o *orchestrator.Orchestrator, d *harness.Drill, final *plan.Plan, ds plan.Dataset, cmd *cobra.Command) error {
	if final.DataName() == "" {
		msg := fmt.Sprintf("drill needs a total or split plan, final plan is %s", final.Mode())
		_ = s.out.Error(ErrCodeScenario, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	if d.Row >= len(ds.Data) {
		msg := fmt.Sprintf("drill row %d out of range (%d row(s))", d.Row, len(ds.Data))
		_ = s.out.Error(ErrCodeScenario, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	ops, err := d.Operations()
	if err != nil {
		_ = s.out.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid drill", err)
	}

	nested, rest, err := o.Drill(cmd.Context(), ds.Data[d.Row][final.DataName()], ops...)
	if err != nil {
		_ = s.out.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "drill failed", err)
	}
	if len(rest) > 0 {
		var leftover []string
		for _, op := range rest {
			leftover = append(leftover, op.String())
			s.out.VerboseLog("Drill %s not delegated; not evaluated", op)
		}
		if !opts.AllowPartial {
			msg := fmt.Sprintf("%d drill step(s) not delegated; rerun with --allow-partial to query the accepted steps", len(rest))
			_ = s.out.Error(ErrCodeScenario, msg, leftover)
			return NewExitError(ExitFailure, msg)
		}
	}
	return s.out.Success(newRecordsReport(nested))
}
