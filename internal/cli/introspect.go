package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/catalog"
	"github.com/roach88/fedplan/internal/plan"
)

// NewIntrospectCommand creates the introspect command.
func NewIntrospectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "introspect <source>",
		Short: "Discover the schema of a catalog source",
		Long: `Ask a catalog source's engine for its schema. Sources declared with an
attribute list are answered from the declaration; the others are queried.

Example:
  fedplan introspect --catalog ./catalog --sqlite ./shop.db sales`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntrospect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// schemaReport is the output of the introspect command.
type schemaReport struct {
	Source     string          `json:"source"`
	Engine     string          `json:"engine"`
	Attributes plan.Attributes `json:"attributes"`
}

func (r schemaReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", r.Source, r.Engine)
	for _, attr := range r.Attributes {
		fmt.Fprintf(&b, "  %-24s %s\n", attr.Name, attr.Type)
	}
	return b.String()
}

func runIntrospect(opts *RootOptions, name string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	if s.catalog == nil {
		return NewExitError(ExitCommandError, "introspect requires --catalog")
	}

	p, err := s.catalog.Plan(name, s.planOptions()...)
	if errors.Is(err, catalog.ErrUnknownSource) {
		_ = s.out.Error(ErrCodeGeneric, err.Error(), s.catalog.Names())
		return WrapExitError(ExitCommandError, "unknown source", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to plan source", err)
	}

	mux, err := s.openTransport(cmd.Context())
	if err != nil {
		_ = s.out.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open transport", err)
	}
	defer func() {
		if err := mux.Close(); err != nil {
			s.logger.Error("error closing transport", "error", err)
		}
	}()

	p, err = s.orchestrator(mux, nil).Introspect(cmd.Context(), p)
	if err != nil {
		_ = s.out.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "introspection failed", err)
	}

	attrs := p.Attributes()
	if attrs == nil {
		attrs = plan.Attributes{}
	}
	return s.out.Success(schemaReport{Source: name, Engine: p.Engine(), Attributes: attrs})
}
