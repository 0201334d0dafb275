package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"helm.sh/helm/v3/pkg/chart"

	"github.com/hupe1980/kpsport/internal/config"
	"github.com/hupe1980/kpsport/internal/helm/loader"
	"github.com/hupe1980/kpsport/internal/helm/renderer"
	"github.com/hupe1980/kpsport/internal/logging"
	"github.com/hupe1980/kpsport/internal/output"
)

// session bundles what every processing command needs.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	emitter *output.Emitter
	// report receives the human summary; it is io.Discard in quiet mode.
	report io.Writer
}

func newSession(cmd *cobra.Command, oo *outputOptions) *session {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	report := cmd.ErrOrStderr()
	if cfg.Quiet {
		report = io.Discard
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		emitter: output.NewEmitter(output.EmitOptions{
			DryRun: oo.dryRun,
			Diff:   oo.diff,
			Color:  !cfg.NoColor,
		}, cmd.OutOrStdout(), logger),
		report: report,
	}
}

// skip records why one input was not converted.
type skip struct {
	Name   string
	Reason string
}

// stageResult aggregates the outcome of one command run.
type stageResult struct {
	Processed int
	Skipped   []skip
	Written   int
	// OutputPath is the main output file, if the stage has one.
	OutputPath string
}

func (r *stageResult) skip(name, reason string) {
	r.Skipped = append(r.Skipped, skip{Name: name, Reason: reason})
}

func (r *stageResult) emitted(res output.EmitResult) {
	if res.Written {
		r.Written++
	}
}

func (r *stageResult) printSkipped(w io.Writer) {
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Name, s.Reason)
	}
}

// ---------------------------------------------------------------------------
// Template sources
// ---------------------------------------------------------------------------

// templateSource renders single chart templates and knows which templates
// exist.
type templateSource interface {
	renderer.Renderer
	// ResolveDir picks the versioned directory of family.
	ResolveDir(family renderer.TemplateFamily) (string, error)
	// Templates lists the templates of a chart-relative directory.
	Templates(dir string) ([]string, error)
}

// dirSource renders a chart directory by running helm.
type dirSource struct {
	*renderer.ExecRenderer
	root        string
	kubeVersion string
}

func (s *dirSource) ResolveDir(family renderer.TemplateFamily) (string, error) {
	return family.ResolveDir(s.root, s.kubeVersion)
}

func (s *dirSource) Templates(dir string) ([]string, error) {
	return renderer.DiscoverTemplates(s.root, dir)
}

// chartSource renders a loaded chart in-process.
type chartSource struct {
	*renderer.EngineRenderer
	chart       *chart.Chart
	kubeVersion string
}

func (s *chartSource) ResolveDir(family renderer.TemplateFamily) (string, error) {
	return family.ResolveChartDir(s.chart, s.kubeVersion)
}

func (s *chartSource) Templates(dir string) ([]string, error) {
	return renderer.ChartTemplates(s.chart, dir)
}

// openSource builds the template source selected by the configuration.
func openSource(ctx context.Context, cfg *config.Config, co *chartOptions) (templateSource, error) {
	kind, err := renderer.ParseKind(cfg.Renderer)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	vopts := renderer.ValuesOptions{
		ValueFiles:   cfg.Values,
		Values:       co.setValues,
		StringValues: co.setStrings,
		FileValues:   co.setFiles,
	}

	if kind == renderer.KindExec {
		st, err := loader.Detect(cfg.Chart)
		if err != nil || st != loader.SourceDirectory {
			return nil, &ExitError{Code: 2, Err: fmt.Errorf("the exec renderer needs a chart directory, got %q (use --renderer engine for archives and OCI references)", cfg.Chart)}
		}

		r, err := renderer.NewExecRenderer(renderer.ExecOptions{
			Binary:      cfg.HelmBinary,
			ChartDir:    cfg.Chart,
			KubeVersion: cfg.KubeVersion,
			Values:      vopts,
			Timeout:     co.timeout,
		})
		if err != nil {
			return nil, &ExitError{Code: 2, Err: err}
		}

		return &dirSource{ExecRenderer: r, root: cfg.Chart, kubeVersion: cfg.KubeVersion}, nil
	}

	ch, err := loader.New(loader.Options{
		Username:  co.username,
		Password:  co.password,
		PlainHTTP: co.plainHTTP,
	}).Load(ctx, cfg.Chart)
	if err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("loading chart: %w", err)}
	}

	vals, err := renderer.MergeValues(ch, vopts)
	if err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("merging values: %w", err)}
	}

	logging.FromContext(ctx).Debug("chart loaded",
		slog.String("name", ch.Name()),
		slog.String("version", ch.Metadata.Version),
		slog.Int("templates", len(ch.Templates)),
	)

	r := renderer.NewEngineRenderer(ch, vals, renderer.EngineOptions{
		ReleaseName: co.releaseName,
		Namespace:   co.namespace,
		KubeVersion: cfg.KubeVersion,
		Strict:      co.strict,
	})

	return &chartSource{EngineRenderer: r, chart: ch, kubeVersion: cfg.KubeVersion}, nil
}

// listTemplates resolves the template directory of family, unless dir is
// set, and lists its templates. Failing here aborts the command.
func listTemplates(src templateSource, family renderer.TemplateFamily, dir string) (string, []string, error) {
	if dir == "" {
		resolved, err := src.ResolveDir(family)
		if err != nil {
			return "", nil, &ExitError{Code: 1, Err: err}
		}

		dir = resolved
	}

	templates, err := src.Templates(dir)
	if err != nil {
		return "", nil, &ExitError{Code: 1, Err: err}
	}

	return dir, templates, nil
}

// renderReason turns a render failure into a one-line skip reason.
func renderReason(err error) string {
	var re *renderer.RenderError
	if errors.As(err, &re) && errors.Is(re.Err, renderer.ErrTemplateNotFound) {
		return "template rendered nothing"
	}

	return "render failed"
}

// stem returns the file name of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// readRequired reads an input file a command cannot run without.
func readRequired(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a configured input
	if err != nil {
		return nil, &ExitError{Code: 1, Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	return data, nil
}
