package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kpsport/internal/dashboard"
)

type dashboardsOptions struct {
	outputOptions

	inputDir    string
	portableDir string
	agnosticDir string
}

func newDashboardsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboards",
		Short: "Make extracted dashboards independent of the cluster variable",
		Long: `Rewrite extracted dashboards so they work on a Prometheus without a
cluster label.

  portable  keeps the cluster variable, hidden and bound to All, and removes
            the cluster=~"$cluster" filters
  agnostic  removes every cluster filter, legend reference and the variable
  all       writes both variants`,
	}

	cmd.AddCommand(
		newDashboardVariantCommand(dashboard.VariantPortable, "Write the portable variant", defaultPortableDir),
		newDashboardVariantCommand(dashboard.VariantAgnostic, "Write the cluster-agnostic variant", defaultAgnosticDir),
		newDashboardsAllCommand(),
	)

	return cmd
}

func newDashboardVariantCommand(v dashboard.Variant, short, outDir string) *cobra.Command {
	opts := &dashboardsOptions{}

	cmd := &cobra.Command{
		Use:   string(v),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd, &opts.outputOptions)

			rw, err := newRewriter(s)
			if err != nil {
				return err
			}

			dir := opts.portableDir
			if v == dashboard.VariantAgnostic {
				dir = opts.agnosticDir
			}

			res, err := neutralizeDashboards(s, rw, v, opts.inputDir, dir)
			if err != nil {
				return err
			}

			printDashboardResult(s, v, dir, res)

			return nil
		},
	}

	registerOutputFlags(cmd, &opts.outputOptions)
	registerDashboardFlags(cmd)

	f := cmd.Flags()
	f.StringVarP(&opts.inputDir, "input-dir", "i", defaultDashboardsDir, "directory of extracted dashboards")

	if v == dashboard.VariantAgnostic {
		f.StringVarP(&opts.agnosticDir, "output-dir", "o", outDir, "output directory")
	} else {
		f.StringVarP(&opts.portableDir, "output-dir", "o", outDir, "output directory")
	}

	return cmd
}

func newDashboardsAllCommand() *cobra.Command {
	opts := &dashboardsOptions{}

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Write the portable and the cluster-agnostic variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd, &opts.outputOptions)

			rw, err := newRewriter(s)
			if err != nil {
				return err
			}

			for _, step := range []struct {
				variant dashboard.Variant
				dir     string
			}{
				{dashboard.VariantPortable, opts.portableDir},
				{dashboard.VariantAgnostic, opts.agnosticDir},
			} {
				res, err := neutralizeDashboards(s, rw, step.variant, opts.inputDir, step.dir)
				if err != nil {
					return err
				}

				printDashboardResult(s, step.variant, step.dir, res)
			}

			fmt.Fprintf(s.report, "\n  %-30s hidden cluster variable set to All\n", opts.portableDir+"/")
			fmt.Fprintf(s.report, "  %-30s no cluster references at all\n", opts.agnosticDir+"/")
			fmt.Fprintln(s.report, "Import into Grafana and select your Prometheus datasource.")

			return nil
		},
	}

	registerOutputFlags(cmd, &opts.outputOptions)
	registerDashboardFlags(cmd)

	f := cmd.Flags()
	f.StringVarP(&opts.inputDir, "input-dir", "i", defaultDashboardsDir, "directory of extracted dashboards")
	f.StringVar(&opts.portableDir, "portable-dir", defaultPortableDir, "output directory of the portable variant")
	f.StringVar(&opts.agnosticDir, "agnostic-dir", defaultAgnosticDir, "output directory of the cluster-agnostic variant")

	return cmd
}

func newRewriter(s *session) (*dashboard.Rewriter, error) {
	mode, err := dashboard.ParseMode(s.cfg.DashboardMode)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	return dashboard.NewRewriter(dashboard.Options{
		Label:      s.cfg.ClusterLabel,
		Datasource: s.cfg.Datasource,
		Mode:       mode,
	}), nil
}

// neutralizeDashboards writes variant v of every *.json file in inDir to
// outDir, one file at a time.
func neutralizeDashboards(s *session, rw *dashboard.Rewriter, v dashboard.Variant, inDir, outDir string) (*stageResult, error) {
	files, err := filepath.Glob(filepath.Join(inDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing dashboards: %w", err)
	}

	sort.Strings(files)

	if len(files) == 0 {
		s.logger.Warn("no dashboards found", slog.String("dir", inDir))
	}

	res := &stageResult{}

	for _, file := range files {
		name := filepath.Base(file)
		logger := s.logger.With(slog.String("dashboard", name), slog.String("variant", string(v)))

		data, err := os.ReadFile(file) //nolint:gosec // file comes from a directory listing
		if err != nil {
			logger.Error("reading dashboard failed", slog.String("error", err.Error()))
			res.skip(name, "unreadable")

			continue
		}

		if len(data) == 0 {
			logger.Warn("skipping empty file")
			res.skip(name, "empty file")

			continue
		}

		d, err := dashboard.Parse(data)
		if err != nil {
			logger.Error("invalid dashboard", slog.String("error", err.Error()))
			res.skip(name, "invalid JSON")

			continue
		}

		out, err := rw.Neutralize(d, v)
		if err != nil {
			logger.Error("rewriting dashboard failed", slog.String("error", err.Error()))
			res.skip(name, err.Error())

			continue
		}

		encoded, err := out.MarshalIndent()
		if err != nil {
			logger.Error("encoding dashboard failed", slog.String("error", err.Error()))
			res.skip(name, err.Error())

			continue
		}

		emitted, err := s.emitter.Emit(filepath.Join(outDir, name), encoded)
		if err != nil {
			return res, err
		}

		res.Processed++
		res.emitted(emitted)

		logger.Info("converted dashboard", slog.String("path", emitted.Path))
	}

	return res, nil
}

func printDashboardResult(s *session, v dashboard.Variant, dir string, res *stageResult) {
	fmt.Fprintf(s.report, "%s: %d dashboards converted to %s (%d written, %d skipped)\n",
		v, res.Processed, dir, res.Written, len(res.Skipped))
	res.printSkipped(s.report)
}
