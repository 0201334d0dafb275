package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kpsport/internal/helm/loader"
	"github.com/hupe1980/kpsport/internal/rules"
	"github.com/hupe1980/kpsport/internal/watch"
)

// Stages the watch command can re-run.
const (
	stageDashboards = "dashboards"
	stageRules      = "rules"
)

type watchOptions struct {
	extractOptions

	stage    string
	debounce time.Duration
	validate bool
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run an extraction whenever the chart changes",
		Long: `Watch monitors the chart directory and the value files and re-runs the
selected extraction stage when they change.

File changes are debounced to avoid rapid re-runs. Each run prints one
status line with the number of processed, skipped and written files. The
output directory is not watched. With --stage rules the written rules
file is validated after each run (disable with --validate=false).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	registerChartFlags(cmd, &opts.chartOptions)
	registerOutputFlags(cmd, &opts.outputOptions)
	registerLabelFlag(cmd)

	f := cmd.Flags()
	f.StringVar(&opts.stage, "stage", stageDashboards, "stage to re-run: dashboards, rules")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "output directory (default: the stage's default)")
	f.StringVar(&opts.guideFormat, "guide-format", "markdown", "usage guide format for the rules stage")
	f.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "debounce interval for file changes")
	f.BoolVar(&opts.validate, "validate", true, "validate the rules file after each run")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	s := newSession(cmd, &opts.outputOptions)

	if st, err := loader.Detect(s.cfg.Chart); err != nil || st != loader.SourceDirectory {
		return &ExitError{Code: 2, Err: fmt.Errorf("watch needs a chart directory, got %q", s.cfg.Chart)}
	}

	var stage func(ctx context.Context, s *session, src templateSource, opts *extractOptions) (*stageResult, error)

	switch opts.stage {
	case stageDashboards:
		stage = extractDashboards

		if opts.outputDir == "" {
			opts.outputDir = defaultDashboardsDir
		}
	case stageRules:
		stage = extractRules

		if opts.outputDir == "" {
			opts.outputDir = defaultRulesDir
		}
	default:
		return &ExitError{Code: 2, Err: fmt.Errorf("invalid stage %q: must be one of dashboards, rules", opts.stage)}
	}

	runFn := func(ctx context.Context) (*watch.RunResult, error) {
		// The engine renderer caches its output, so every run starts afresh.
		src, err := openSource(ctx, s.cfg, &opts.chartOptions)
		if err != nil {
			return nil, err
		}

		res, err := stage(ctx, s, src, &opts.extractOptions)
		if err != nil {
			return nil, err
		}

		return &watch.RunResult{
			Processed:  res.Processed,
			Skipped:    len(res.Skipped),
			Written:    res.Written,
			OutputPath: res.OutputPath,
		}, nil
	}

	var validateFn watch.ValidateFunc
	if opts.validate && opts.stage == stageRules && !opts.dryRun {
		validateFn = func(_ context.Context, outputPath string) error {
			data, err := os.ReadFile(outputPath) //nolint:gosec // path written by the rules stage
			if err != nil {
				return err
			}

			return validationError(rules.Validate(data, s.cfg.ClusterLabel), false)
		}
	}

	var extra []string

	for _, f := range s.cfg.Values {
		if _, err := os.Stat(f); err == nil {
			extra = append(extra, f)
		}
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.ChartDir = s.cfg.Chart
	watchOpts.ExtraFiles = extra
	watchOpts.Ignore = []string{opts.outputDir}
	watchOpts.Debounce = opts.debounce
	watchOpts.ValidateFn = validateFn
	watchOpts.Logger = s.logger
	watchOpts.Out = cmd.ErrOrStderr()

	return watch.Run(cmd.Context(), watchOpts, runFn)
}
