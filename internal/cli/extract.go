package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kpsport/internal/docs"
	"github.com/hupe1980/kpsport/internal/helm/renderer"
	"github.com/hupe1980/kpsport/internal/k8s"
	"github.com/hupe1980/kpsport/internal/k8s/parser"
	"github.com/hupe1980/kpsport/internal/rules"
)

type extractOptions struct {
	chartOptions
	outputOptions

	outputDir   string
	guideFormat string
}

// ---------------------------------------------------------------------------
// extract-dashboards
// ---------------------------------------------------------------------------

func newExtractDashboardsCommand() *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract-dashboards",
		Short: "Extract Grafana dashboard JSON from the chart",
		Long: `Render every dashboard template of the chart one at a time and write the
dashboard JSON embedded in each ConfigMap to <output-dir>/<template>.json.

The first data key ending in .json that holds valid JSON is extracted.
Templates that fail to render, or that contain no dashboard, are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd, &opts.outputOptions)

			src, err := openSource(cmd.Context(), s.cfg, &opts.chartOptions)
			if err != nil {
				return err
			}

			res, err := extractDashboards(cmd.Context(), s, src, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(s.report, "Extracted %d dashboards to %s (%d written, %d skipped)\n",
				res.Processed, opts.outputDir, res.Written, len(res.Skipped))
			res.printSkipped(s.report)

			return nil
		},
	}

	registerChartFlags(cmd, &opts.chartOptions)
	registerOutputFlags(cmd, &opts.outputOptions)
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", defaultDashboardsDir, "output directory")

	return cmd
}

func extractDashboards(ctx context.Context, s *session, src templateSource, opts *extractOptions) (*stageResult, error) {
	dir, templates, err := listTemplates(src, renderer.DashboardTemplates, opts.templateDir)
	if err != nil {
		return nil, err
	}

	s.logger.Info("found dashboard templates", slog.String("dir", dir), slog.Int("count", len(templates)))

	res := &stageResult{}
	p := parser.NewParser()

	for _, tpl := range templates {
		name := stem(tpl)
		logger := s.logger.With(slog.String("dashboard", name))

		rendered, err := src.RenderTemplate(ctx, tpl)
		if err != nil {
			logger.Error("helm template failed", slog.String("error", err.Error()))
			res.skip(name, renderReason(err))

			continue
		}

		resources, err := p.Parse(ctx, rendered)
		if err != nil {
			logger.Error("failed to parse rendered YAML", slog.String("error", err.Error()))
			res.skip(name, "invalid YAML")

			continue
		}

		data, err := k8s.DashboardJSON(k8s.First(resources, k8s.IsConfigMap))
		if err != nil {
			if errors.Is(err, k8s.ErrNoData) || errors.Is(err, k8s.ErrNoJSON) {
				logger.Warn("no dashboard found", slog.String("reason", err.Error()))
			} else {
				logger.Error("extracting dashboard failed", slog.String("error", err.Error()))
			}

			res.skip(name, err.Error())

			continue
		}

		emitted, err := s.emitter.Emit(filepath.Join(opts.outputDir, name+".json"), data)
		if err != nil {
			return res, err
		}

		res.Processed++
		res.emitted(emitted)

		logger.Info("extracted dashboard", slog.String("path", emitted.Path))
	}

	return res, nil
}

// ---------------------------------------------------------------------------
// extract-rules
// ---------------------------------------------------------------------------

func newExtractRulesCommand() *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract-rules",
		Short: "Extract Prometheus rules for a standalone Prometheus",
		Long: `Render every PrometheusRule template of the chart one at a time, strip the
cluster label from every expression and write all groups to a single
<output-dir>/rules.yml, together with a usage guide.

Rules without an expression are dropped, and so are groups left empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newSession(cmd, &opts.outputOptions)

			if _, err := docs.NewFormatter(opts.guideFormat); err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			src, err := openSource(cmd.Context(), s.cfg, &opts.chartOptions)
			if err != nil {
				return err
			}

			res, err := extractRules(cmd.Context(), s, src, opts)
			if err != nil {
				return err
			}

			res.printSkipped(s.report)

			return nil
		},
	}

	registerChartFlags(cmd, &opts.chartOptions)
	registerOutputFlags(cmd, &opts.outputOptions)
	registerLabelFlag(cmd)

	f := cmd.Flags()
	f.StringVarP(&opts.outputDir, "output-dir", "o", defaultRulesDir, "output directory")
	f.StringVar(&opts.guideFormat, "guide-format", "markdown", "usage guide format: markdown, html, asciidoc")

	return cmd
}

func extractRules(ctx context.Context, s *session, src templateSource, opts *extractOptions) (*stageResult, error) {
	dir, templates, err := listTemplates(src, renderer.RuleTemplates, opts.templateDir)
	if err != nil {
		return nil, err
	}

	s.logger.Info("found rule templates", slog.String("dir", dir), slog.Int("count", len(templates)))

	res := &stageResult{}
	p := parser.NewParser()
	topts := rules.TransformOptions{Label: s.cfg.ClusterLabel, Fields: s.cfg.Rules.RuleFields}

	var doc rules.Document

	for _, tpl := range templates {
		name := stem(tpl)
		logger := s.logger.With(slog.String("template", name))

		rendered, err := src.RenderTemplate(ctx, tpl)
		if err != nil {
			logger.Error("helm template failed", slog.String("error", err.Error()))
			res.skip(name, renderReason(err))

			continue
		}

		resources, err := p.Parse(ctx, rendered)
		if err != nil {
			logger.Error("failed to parse rendered YAML", slog.String("error", err.Error()))
			res.skip(name, "invalid YAML")

			continue
		}

		groups, err := k8s.PrometheusRuleGroups(k8s.First(resources, k8s.IsPrometheusRule))
		if err != nil {
			if errors.Is(err, rules.ErrNoGroups) {
				logger.Warn("no rule groups found")
			} else {
				logger.Error("reading rule groups failed", slog.String("error", err.Error()))
			}

			res.skip(name, err.Error())

			continue
		}

		part, stats := rules.Transform(groups, topts)
		for _, g := range part.Groups {
			logger.Info("added group", slog.String("group", g.Name), slog.Int("rules", len(g.Rules)))
		}

		if stats.DroppedRules > 0 {
			logger.Debug("dropped rules without expr", slog.Int("count", stats.DroppedRules))
		}

		doc.Groups = append(doc.Groups, part.Groups...)
		res.Processed++
	}

	if len(doc.Groups) == 0 {
		fmt.Fprintln(s.report, "No rules to extract.")
		return res, nil
	}

	data, err := rules.MarshalSorted(doc)
	if err != nil {
		return res, err
	}

	res.OutputPath = filepath.Join(opts.outputDir, rulesFile)

	emitted, err := s.emitter.Emit(res.OutputPath, data)
	if err != nil {
		return res, err
	}

	res.emitted(emitted)

	formatter, err := docs.NewFormatter(opts.guideFormat)
	if err != nil {
		return res, &ExitError{Code: 2, Err: err}
	}

	var guide bytes.Buffer
	if err := formatter.Format(&guide, docs.NewGuideModel(doc, rulesFile, s.cfg.ClusterLabel)); err != nil {
		return res, fmt.Errorf("generating usage guide: %w", err)
	}

	emitted, err = s.emitter.Emit(filepath.Join(opts.outputDir, formatter.FileName()), guide.Bytes())
	if err != nil {
		return res, err
	}

	res.emitted(emitted)

	fmt.Fprintf(s.report, "Wrote %s: %d groups, %d rules\n", res.OutputPath, len(doc.Groups), doc.RuleCount())

	return res, nil
}
