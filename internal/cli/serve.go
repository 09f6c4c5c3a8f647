package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the configured engines as an HTTP gateway",
		Long: `Serve the configured engines over HTTP so other fedplan processes can
reach them with --gateway.

Routes:
  POST ` + transport.QueryPath + `  run one wire request
  GET  /healthz   liveness
  GET  /metrics   prometheus metrics

Example:
  fedplan serve --listen :8080 --sqlite ./shop.db --dsn postgres://localhost/shop`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	cmd.Flags().String("listen", ":8080", "address to listen on")
	_ = rootOpts.viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	if s.cfg.Gateway != "" {
		return NewExitError(ExitCommandError, "serve cannot forward to another gateway")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux, err := s.openTransport(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open transport", err)
	}
	defer func() {
		if err := mux.Close(); err != nil {
			s.logger.Error("error closing transport", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gateway := transport.NewServer(mux,
		transport.WithServerLogger(s.logger),
		transport.WithGatherer(reg),
	)

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "engines", mux.Engines())
	fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on %s (engines: %v)\n", ln.Addr(), mux.Engines())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "gateway error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "gateway shutdown", err)
	}
	s.logger.Info("gateway stopped gracefully")
	return nil
}
