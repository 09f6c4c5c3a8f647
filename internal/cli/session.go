package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/backend/parquetback"
	"github.com/roach88/fedplan/internal/backend/sqlback"
	"github.com/roach88/fedplan/internal/catalog"
	"github.com/roach88/fedplan/internal/harness"
	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
	"github.com/roach88/fedplan/internal/transport"
)

// session carries the resolved configuration of one command invocation.
type session struct {
	cfg     Config
	out     *OutputFormatter
	logger  *slog.Logger
	catalog *catalog.Catalog
}

func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	level, err := opts.Config.Level()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	s := &session{cfg: opts.Config, out: out, logger: out.Logger(level)}

	if opts.Config.Catalog != "" {
		cat, errs := catalog.Load(opts.Config.Catalog, catalog.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", errs[0])
		}
		out.VerboseLog("Loaded %d source(s) from %d CUE file(s) in %s", len(cat.Names()), cat.FileCount, opts.Config.Catalog)
		s.catalog = cat
	}
	return s, nil
}

func (s *session) planOptions() []plan.Option {
	return []plan.Option{plan.WithTempNameLimit(s.cfg.TempNameLimit)}
}

func (s *session) harness(extra ...harness.Option) *harness.Harness {
	opts := []harness.Option{
		harness.WithLogger(s.logger),
		harness.WithPlanOptions(s.planOptions()...),
	}
	if s.catalog != nil {
		opts = append(opts, harness.WithCatalog(s.catalog))
	}
	return harness.New(append(opts, extra...)...)
}

// loadScenario loads one scenario file. Relative parquet paths are left as
// written; the parquet transport resolves them against its root.
func (s *session) loadScenario(path string) (*harness.Scenario, error) {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	return scenario, nil
}

// openTransport connects every configured engine. With a gateway configured
// all engines are routed to it instead.
func (s *session) openTransport(ctx context.Context) (*transport.Mux, error) {
	mux := transport.NewMux()
	if s.cfg.Gateway != "" {
		client := transport.NewHTTPClient(s.cfg.Gateway, nil)
		for _, engine := range plan.Engines() {
			mux.Handle(engine, client)
		}
		s.logger.Debug("routing all engines to gateway", "url", s.cfg.Gateway)
		return mux, nil
	}

	mux.Handle(parquetback.Engine, transport.NewParquetFiles(s.cfg.ParquetRoot))
	if s.cfg.SQLite != "" {
		db, err := transport.OpenSQLite(s.cfg.SQLite)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("sqlite: %w", err), mux.Close())
		}
		mux.Handle(string(sqlback.SQLite), db)
	}
	if s.cfg.DSN != "" {
		pg, err := transport.OpenPostgres(ctx, s.cfg.DSN)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("postgres: %w", err), mux.Close())
		}
		mux.Handle(string(sqlback.Postgres), pg)
	}
	s.logger.Debug("transports ready", "engines", mux.Engines())
	return mux, nil
}

func (s *session) orchestrator(t orchestrator.Transport, reg prometheus.Registerer) *orchestrator.Orchestrator {
	return orchestrator.New(
		orchestrator.WithTransport(t),
		orchestrator.WithLogger(s.logger),
		orchestrator.WithMetrics(orchestrator.NewMetrics(reg)),
	)
}

// introspectIfNeeded discovers the schema of plans declared without one.
func introspectIfNeeded(o *orchestrator.Orchestrator) harness.PrepareFunc {
	return func(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
		if !p.NeedsIntrospect() {
			return p, nil
		}
		return o.Introspect(ctx, p)
	}
}

// reportScenario writes a harness result and turns a failed expectation
// into an exit error.
func (s *session) reportScenario(result *harness.Result) error {
	if err := s.out.Success(planReport{result}); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d expectation(s) failed", len(result.Errors)))
	}
	return nil
}
