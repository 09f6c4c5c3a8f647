package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/fedplan/internal/plan"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is resolved before any subcommand runs.
	Config Config

	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fedplan CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: newViper()}

	cmd := &cobra.Command{
		Use:   "fedplan",
		Short: "fedplan - federated analytic query planner",
		Long: `Plan analytic queries against remote data sources.

Operations are offered to a plan one at a time; each source's engine accepts
what it can compute and rejects the rest. Accepted work is compiled into a
single request per source.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := loadConfig(opts.viper, opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	flags.String("catalog", "", "directory of CUE source declarations")
	flags.String("dsn", "", "postgres connection string")
	flags.String("sqlite", "", "sqlite database file")
	flags.String("parquet-root", ".", "directory relative parquet paths resolve against")
	flags.String("gateway", "", "send all requests to a remote fedplan gateway at this URL")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.Int("temp-name-limit", plan.DefaultTempNameLimit, "attempts when choosing a temporary attribute name")
	for _, name := range []string{"catalog", "dsn", "sqlite", "parquet-root", "gateway", "log-level", "temp-name-limit"} {
		_ = opts.viper.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewIntrospectCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
