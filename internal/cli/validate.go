package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fedplan/internal/catalog"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Sources []string          `json:"sources,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one problem found in a catalog.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate CUE source declarations",
		Long: `Load every CUE file of a catalog directory and check each declared
source: its engine, attribute types, default filter and time attribute.
All problems are reported, not just the first.

Example:
  fedplan validate ./catalog`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cat, loadErrors := catalog.Load(dir, catalog.LoadModeCollectAll)
	if cat == nil {
		// The directory itself could not be loaded.
		code, message := ErrCodeGeneric, loadErrors[0].Error()
		var loadErr *catalog.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			code, message = loadErr.Code, loadErr.Message
		}
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", cat.FileCount, dir)

	if len(loadErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors(loadErrors))
	}
	for _, name := range cat.Names() {
		formatter.VerboseLog("Validated source: %s", name)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Sources: cat.Names()})
	}
	_, err := fmt.Fprintf(formatter.Writer, "✓ %d source(s) valid\n", len(cat.Names()))
	return err
}

func validationErrors(errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *catalog.LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, ValidationError{Code: ErrCodeGeneric, Message: err.Error()})
			continue
		}
		ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			ve.File = loadErr.Pos.Filename()
			ve.Line = loadErr.Pos.Line()
		}
		out = append(out, ve)
	}
	return out
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		})
		if err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
