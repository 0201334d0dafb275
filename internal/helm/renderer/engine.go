package renderer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"
)

// EngineOptions configures an EngineRenderer.
type EngineOptions struct {
	ReleaseName string
	Namespace   string
	KubeVersion string
	Strict      bool
}

// DefaultEngineOptions mirrors the release helm template uses by default.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		ReleaseName: "release-name",
		Namespace:   "default",
	}
}

// ErrTemplateNotFound is returned for a template the chart does not render.
var ErrTemplateNotFound = errors.New("could not find template in chart")

// compile-time interface conformance check.
var _ Renderer = (*EngineRenderer)(nil)

// EngineRenderer renders the whole chart once with the Helm SDK and serves
// single templates from the result.
type EngineRenderer struct {
	chart  *chart.Chart
	values map[string]interface{}
	opts   EngineOptions

	once     sync.Once
	rendered map[string]string
	err      error
}

// NewEngineRenderer creates an EngineRenderer for ch with merged values.
func NewEngineRenderer(ch *chart.Chart, vals map[string]interface{}, opts EngineOptions) *EngineRenderer {
	def := DefaultEngineOptions()

	if opts.ReleaseName == "" {
		opts.ReleaseName = def.ReleaseName
	}

	if opts.Namespace == "" {
		opts.Namespace = def.Namespace
	}

	return &EngineRenderer{chart: ch, values: vals, opts: opts}
}

// RenderTemplate returns the manifest rendered from templatePath, preceded
// by the "# Source:" header helm writes.
func (r *EngineRenderer) RenderTemplate(ctx context.Context, templatePath string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, &RenderError{Template: templatePath, Err: fmt.Errorf("rendering cancelled: %w", ctx.Err())}
	default:
	}

	r.once.Do(func() {
		r.rendered, r.err = r.renderAll()
	})

	if r.err != nil {
		return nil, &RenderError{Template: templatePath, Err: r.err}
	}

	key := path.Join(r.chart.Name(), filepath.ToSlash(templatePath))

	content, ok := r.rendered[key]
	if !ok || strings.TrimSpace(content) == "" {
		return nil, &RenderError{Template: templatePath, Err: ErrTemplateNotFound}
	}

	return []byte("---\n# Source: " + key + "\n" + strings.TrimSpace(content) + "\n"), nil
}

func (r *EngineRenderer) renderAll() (map[string]string, error) {
	options := chartutil.ReleaseOptions{
		Name:      r.opts.ReleaseName,
		Namespace: r.opts.Namespace,
		Revision:  1,
		IsInstall: true,
	}

	var caps *chartutil.Capabilities

	if r.opts.KubeVersion != "" {
		kv, err := chartutil.ParseKubeVersion(r.opts.KubeVersion)
		if err != nil {
			return nil, fmt.Errorf("parsing kube version: %w", err)
		}

		caps = &chartutil.Capabilities{
			KubeVersion: *kv,
			APIVersions: chartutil.DefaultVersionSet,
			HelmVersion: chartutil.DefaultCapabilities.HelmVersion,
		}
	}

	valuesToRender, err := chartutil.ToRenderValues(r.chart, r.values, options, caps)
	if err != nil {
		return nil, fmt.Errorf("preparing render values: %w", err)
	}

	eng := engine.Engine{Strict: r.opts.Strict}

	rendered, err := eng.Render(r.chart, valuesToRender)
	if err != nil {
		return nil, fmt.Errorf("rendering templates: %w", err)
	}

	return rendered, nil
}
