// Package kpsport provides a public Go API for porting the dashboards and
// rules of the kube-prometheus-stack chart to a plain Prometheus and
// Grafana, without the CLI.
//
// Charts are rendered in-process with the Helm SDK, so chartRef can be a
// local directory, a packaged archive or an oci:// reference.
//
// Basic usage:
//
//	res, err := kpsport.ExtractRules(ctx, "path/to/kube-prometheus-stack")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("rules.yml", res.YAML, 0o644)
//
// With options:
//
//	res, err := kpsport.ExtractRules(ctx, "oci://ghcr.io/prometheus-community/charts/kube-prometheus-stack",
//	    kpsport.WithValueFiles([]string{"values.yaml"}),
//	    kpsport.WithKubeVersion("1.29"),
//	    kpsport.WithClusterLabel("cluster"),
//	)
package kpsport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"helm.sh/helm/v3/pkg/chart"

	"github.com/hupe1980/kpsport/internal/dashboard"
	"github.com/hupe1980/kpsport/internal/helm/loader"
	"github.com/hupe1980/kpsport/internal/helm/renderer"
	"github.com/hupe1980/kpsport/internal/k8s"
	"github.com/hupe1980/kpsport/internal/k8s/parser"
	"github.com/hupe1980/kpsport/internal/rules"
)

// Option configures chart loading and rendering.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	// Chart loading.
	username  string
	password  string
	plainHTTP bool

	// Template rendering.
	releaseName string
	namespace   string
	kubeVersion string
	strict      bool
	timeout     time.Duration

	// Values merging.
	valueFiles   []string
	values       []string
	stringValues []string

	// Rule conversion.
	clusterLabel string
	ruleFields   []string
}

func (o *options) applyDefaults() {
	if o.timeout == 0 {
		o.timeout = 5 * time.Minute
	}

	if o.clusterLabel == "" {
		o.clusterLabel = rules.DefaultLabel
	}
}

// WithUsername sets the OCI registry username.
func WithUsername(u string) Option { return func(o *options) { o.username = u } }

// WithPassword sets the OCI registry password.
func WithPassword(p string) Option { return func(o *options) { o.password = p } }

// WithPlainHTTP talks to the OCI registry without TLS.
func WithPlainHTTP() Option { return func(o *options) { o.plainHTTP = true } }

// WithReleaseName sets the Helm release name (default: "release-name").
func WithReleaseName(name string) Option { return func(o *options) { o.releaseName = name } }

// WithNamespace sets the release namespace (default: "default").
func WithNamespace(ns string) Option { return func(o *options) { o.namespace = ns } }

// WithKubeVersion renders for a Kubernetes version and picks the matching
// versioned template directories.
func WithKubeVersion(v string) Option { return func(o *options) { o.kubeVersion = v } }

// WithStrict fails rendering on missing values.
func WithStrict() Option { return func(o *options) { o.strict = true } }

// WithTimeout bounds the whole extraction (default: 5m).
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithValueFiles sets paths to additional values files.
func WithValueFiles(files []string) Option { return func(o *options) { o.valueFiles = files } }

// WithValues sets individual value overrides (key=value).
func WithValues(vals []string) Option { return func(o *options) { o.values = vals } }

// WithStringValues sets individual string value overrides (key=value).
func WithStringValues(vals []string) Option { return func(o *options) { o.stringValues = vals } }

// WithClusterLabel sets the label stripped from rule expressions
// (default: "cluster").
func WithClusterLabel(label string) Option { return func(o *options) { o.clusterLabel = label } }

// WithRuleFields sets the rule fields copied next to expr.
func WithRuleFields(fields []string) Option { return func(o *options) { o.ruleFields = fields } }

// Variant selects how NeutralizeDashboard rewrites a dashboard.
type Variant = dashboard.Variant

const (
	// VariantPortable hides the cluster variable and binds it to "All".
	VariantPortable = dashboard.VariantPortable
	// VariantAgnostic removes the cluster variable and every reference to it.
	VariantAgnostic = dashboard.VariantAgnostic
)

// RulesDocument is a Prometheus rules file.
type RulesDocument = rules.Document

// Skipped names a template that produced no output and why.
type Skipped struct {
	Template string
	Reason   string
}

// Dashboard is one extracted dashboard.
type Dashboard struct {
	// Name is the template file name without extension.
	Name string
	// JSON is the dashboard, indented by two spaces.
	JSON []byte
}

// DashboardsResult holds the output of ExtractDashboards.
type DashboardsResult struct {
	// Dir is the chart-relative template directory that was rendered.
	Dir        string
	Dashboards []Dashboard
	Skipped    []Skipped
}

// RulesResult holds the output of ExtractRules.
type RulesResult struct {
	// Dir is the chart-relative template directory that was rendered.
	Dir string

	// Document is the converted rules document.
	Document RulesDocument

	// YAML is Document serialized with sorted keys.
	YAML []byte

	// DroppedRules counts rules without an expression.
	DroppedRules int

	Skipped []Skipped
}

// ExtractDashboards renders every dashboard template of the chart and
// returns the dashboard JSON of each.
func ExtractDashboards(ctx context.Context, chartRef string, opts ...Option) (*DashboardsResult, error) {
	src, o, err := open(ctx, chartRef, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	dir, templates, err := src.templates(renderer.DashboardTemplates)
	if err != nil {
		return nil, err
	}

	res := &DashboardsResult{Dir: dir}
	p := parser.NewParser()

	for _, tpl := range templates {
		name := stem(tpl)

		resources, err := src.parse(ctx, p, tpl)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Template: name, Reason: err.Error()})
			continue
		}

		data, err := k8s.DashboardJSON(k8s.First(resources, k8s.IsConfigMap))
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Template: name, Reason: err.Error()})
			continue
		}

		res.Dashboards = append(res.Dashboards, Dashboard{Name: name, JSON: data})
	}

	return res, nil
}

// ExtractRules renders every PrometheusRule template of the chart, strips
// the cluster label from each expression and merges all groups into one
// document.
func ExtractRules(ctx context.Context, chartRef string, opts ...Option) (*RulesResult, error) {
	src, o, err := open(ctx, chartRef, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	dir, templates, err := src.templates(renderer.RuleTemplates)
	if err != nil {
		return nil, err
	}

	res := &RulesResult{Dir: dir}
	res.Document.Groups = []rules.Group{}
	p := parser.NewParser()
	topts := rules.TransformOptions{Label: o.clusterLabel, Fields: o.ruleFields}

	for _, tpl := range templates {
		name := stem(tpl)

		resources, err := src.parse(ctx, p, tpl)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Template: name, Reason: err.Error()})
			continue
		}

		groups, err := k8s.PrometheusRuleGroups(k8s.First(resources, k8s.IsPrometheusRule))
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Template: name, Reason: err.Error()})
			continue
		}

		part, stats := rules.Transform(groups, topts)
		res.Document.Groups = append(res.Document.Groups, part.Groups...)
		res.DroppedRules += stats.DroppedRules
	}

	res.YAML, err = rules.MarshalSorted(res.Document)
	if err != nil {
		return nil, err
	}

	return res, nil
}

// NeutralizeDashboard rewrites dashboard JSON into the portable or the
// cluster-agnostic variant. label and datasource may be empty for the
// defaults ("cluster" and "default").
func NeutralizeDashboard(data []byte, variant Variant, label, datasource string) ([]byte, error) {
	d, err := dashboard.Parse(data)
	if err != nil {
		return nil, err
	}

	rw := dashboard.NewRewriter(dashboard.Options{Label: label, Datasource: datasource})

	out, err := rw.Neutralize(d, variant)
	if err != nil {
		return nil, err
	}

	return out.MarshalIndent()
}

// source is a loaded chart ready for rendering.
type source struct {
	chart       *chart.Chart
	r           *renderer.EngineRenderer
	kubeVersion string
}

func open(ctx context.Context, chartRef string, opts []Option) (*source, *options, error) {
	if chartRef == "" {
		return nil, nil, errors.New("chart reference must not be empty")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	o.applyDefaults()

	ch, err := loader.New(loader.Options{
		Username:  o.username,
		Password:  o.password,
		PlainHTTP: o.plainHTTP,
	}).Load(ctx, chartRef)
	if err != nil {
		return nil, nil, fmt.Errorf("loading chart: %w", err)
	}

	vals, err := renderer.MergeValues(ch, renderer.ValuesOptions{
		ValueFiles:   o.valueFiles,
		Values:       o.values,
		StringValues: o.stringValues,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("merging values: %w", err)
	}

	r := renderer.NewEngineRenderer(ch, vals, renderer.EngineOptions{
		ReleaseName: o.releaseName,
		Namespace:   o.namespace,
		KubeVersion: o.kubeVersion,
		Strict:      o.strict,
	})

	return &source{chart: ch, r: r, kubeVersion: o.kubeVersion}, o, nil
}

func (s *source) templates(family renderer.TemplateFamily) (string, []string, error) {
	dir, err := family.ResolveChartDir(s.chart, s.kubeVersion)
	if err != nil {
		return "", nil, err
	}

	templates, err := renderer.ChartTemplates(s.chart, dir)
	if err != nil {
		return "", nil, err
	}

	return dir, templates, nil
}

func (s *source) parse(ctx context.Context, p parser.Parser, tpl string) ([]*k8s.Resource, error) {
	rendered, err := s.r.RenderTemplate(ctx, tpl)
	if err != nil {
		return nil, err
	}

	return p.Parse(ctx, rendered)
}

func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
