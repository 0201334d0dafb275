package renderer

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"helm.sh/helm/v3/pkg/chart"
)

// TemplateFamily describes a set of versioned template directories such as
// templates/grafana/dashboards-1.14.
type TemplateFamily struct {
	// Parent is the chart-relative directory holding the versions.
	Parent string
	// Prefix precedes the version in each directory name.
	Prefix string
}

var (
	// DashboardTemplates holds the Grafana dashboard ConfigMaps.
	DashboardTemplates = TemplateFamily{Parent: "templates/grafana", Prefix: "dashboards-"}
	// RuleTemplates holds the PrometheusRule resources.
	RuleTemplates = TemplateFamily{Parent: "templates/prometheus", Prefix: "rules-"}
)

// ResolveDir picks the directory of f under chartRoot. With a kube version
// the highest directory version not above it wins; otherwise the highest
// overall. The result is chart-relative.
func (f TemplateFamily) ResolveDir(chartRoot, kubeVersion string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(chartRoot, f.Parent))
	if err != nil {
		return "", fmt.Errorf("reading template directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	return f.pick(names, kubeVersion)
}

// ResolveChartDir is ResolveDir over the templates of a loaded chart.
func (f TemplateFamily) ResolveChartDir(ch *chart.Chart, kubeVersion string) (string, error) {
	seen := make(map[string]bool)

	var names []string

	for _, t := range ch.Templates {
		rest, ok := strings.CutPrefix(t.Name, f.Parent+"/")
		if !ok {
			continue
		}

		dir, _, nested := strings.Cut(rest, "/")
		if !nested || seen[dir] {
			continue
		}

		seen[dir] = true
		names = append(names, dir)
	}

	if len(names) == 0 {
		return "", fmt.Errorf("reading template directory: chart %s has no %s templates", ch.Name(), f.Parent)
	}

	return f.pick(names, kubeVersion)
}

func (f TemplateFamily) pick(names []string, kubeVersion string) (string, error) {
	var (
		constraint *semver.Constraints
		err        error
	)

	if kubeVersion != "" {
		constraint, err = semver.NewConstraint("<= " + kubeVersion)
		if err != nil {
			return "", fmt.Errorf("invalid kube version %q: %w", kubeVersion, err)
		}
	}

	var (
		best     *semver.Version
		bestName string
	)

	for _, name := range names {
		if !strings.HasPrefix(name, f.Prefix) {
			continue
		}

		v, err := semver.NewVersion(strings.TrimPrefix(name, f.Prefix))
		if err != nil {
			continue
		}

		if constraint != nil && !constraint.Check(v) {
			continue
		}

		if best == nil || v.GreaterThan(best) {
			best, bestName = v, name
		}
	}

	if best == nil {
		if kubeVersion != "" {
			return "", fmt.Errorf("no %s%s* directory for kube version %s", filepath.ToSlash(f.Parent)+"/", f.Prefix, kubeVersion)
		}

		return "", fmt.Errorf("no %s%s* directory found", filepath.ToSlash(f.Parent)+"/", f.Prefix)
	}

	return path.Join(f.Parent, bestName), nil
}

// DiscoverTemplates lists the *.yaml files of the chart-relative directory
// dir, sorted by name. The returned paths are chart-relative.
func DiscoverTemplates(chartRoot, dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(chartRoot, dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	if _, err := os.Stat(filepath.Join(chartRoot, dir)); err != nil {
		return nil, fmt.Errorf("template directory %q: %w", dir, err)
	}

	templates := make([]string, 0, len(matches))

	for _, m := range matches {
		rel, err := filepath.Rel(chartRoot, m)
		if err != nil {
			return nil, fmt.Errorf("relativizing %q: %w", m, err)
		}

		templates = append(templates, filepath.ToSlash(rel))
	}

	sort.Strings(templates)

	return templates, nil
}

// ChartTemplates lists the *.yaml templates of ch that sit directly in the
// chart-relative directory dir, sorted by name.
func ChartTemplates(ch *chart.Chart, dir string) ([]string, error) {
	dir = strings.TrimSuffix(path.Clean(filepath.ToSlash(dir)), "/")

	var templates []string

	for _, t := range ch.Templates {
		if path.Dir(t.Name) == dir && strings.HasSuffix(t.Name, ".yaml") {
			templates = append(templates, t.Name)
		}
	}

	if len(templates) == 0 {
		return nil, fmt.Errorf("template directory %q: no templates in chart %s", dir, ch.Name())
	}

	sort.Strings(templates)

	return templates, nil
}
