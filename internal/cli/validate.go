package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kpsport/internal/config"
	"github.com/hupe1980/kpsport/internal/rules"
)

type validateOptions struct {
	strict bool
}

func newValidateCommand() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Validate a Prometheus rules file",
		Long: `Validate a rules file the way Prometheus does when loading it: group names
must be unique, every rule is either a recording or an alerting rule, and
every expression must parse.

Expressions that still reference the cluster label are reported as
warnings. Returns exit code 7 on validation failure (or on warnings with
--strict).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], opts)
		},
	}

	registerLabelFlag(cmd)
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on warnings in addition to errors")

	return cmd
}

func runValidate(cmd *cobra.Command, filePath string, opts *validateOptions) error {
	data, err := readRequired(filePath)
	if err != nil {
		return err
	}

	result := rules.Validate(data, config.FromContext(cmd.Context()).ClusterLabel)

	_, _ = fmt.Fprint(cmd.ErrOrStderr(), result.Format())

	if err := validationError(result, opts.strict); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Validation passed.")

	return nil
}

func validationError(result *rules.ValidationResult, strict bool) error {
	if result.HasErrors() {
		return &ExitError{Code: 7, Err: fmt.Errorf("validation failed with %d error(s)", len(result.Errors()))}
	}

	if strict && result.HasWarnings() {
		return &ExitError{Code: 7, Err: fmt.Errorf("validation failed with %d warning(s) (strict mode)", len(result.Warnings()))}
	}

	return nil
}
