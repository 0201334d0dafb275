package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kpsport/internal/config"
	"github.com/hupe1980/kpsport/internal/dashboard"
	"github.com/hupe1980/kpsport/internal/helm/renderer"
	"github.com/hupe1980/kpsport/internal/rules"
)

// Default input and output locations, relative to the chart root.
const (
	defaultDashboardsDir = "dashboards-json"
	defaultPortableDir   = "dashboards-portable"
	defaultAgnosticDir   = "dashboards-cluster-agnostic"
	defaultRulesDir      = "prometheus-rules-standard"
	rulesFile            = "rules.yml"
	updatedRulesFile     = "rules-updated.yml"
	cleanRulesFile       = "rules-clean.yml"
)

// chartOptions holds the rendering flags that are not config keys.
type chartOptions struct {
	setValues   []string
	setStrings  []string
	setFiles    []string
	releaseName string
	namespace   string
	strict      bool
	timeout     time.Duration
	templateDir string
	username    string
	password    string
	plainHTTP   bool
}

// registerChartFlags adds the chart, renderer and values flags to a cobra
// command. Flags named like config keys are picked up by config.Load.
func registerChartFlags(cmd *cobra.Command, opts *chartOptions) {
	f := cmd.Flags()
	f.String("chart", config.DefaultChart, "chart directory, .tgz archive or oci:// reference")
	f.StringSliceP("values", "f", []string{config.DefaultValuesFile}, "values YAML files")
	f.String("renderer", string(renderer.KindExec), "template renderer: exec, engine")
	f.String("helm-binary", renderer.DefaultHelmBinary, "helm executable for the exec renderer")
	f.String("kube-version", "", "target Kubernetes version; selects the versioned template directory")
	f.StringArrayVar(&opts.setValues, "set", nil, "set values (key=value)")
	f.StringArrayVar(&opts.setStrings, "set-string", nil, "set string values")
	f.StringArrayVar(&opts.setFiles, "set-file", nil, "set values from files")
	f.StringVar(&opts.releaseName, "release-name", "release-name", "release name for the engine renderer")
	f.StringVar(&opts.namespace, "namespace", "default", "namespace for the engine renderer")
	f.BoolVar(&opts.strict, "strict", false, "fail on missing template values (engine renderer)")
	f.DurationVar(&opts.timeout, "timeout", renderer.DefaultTimeout, "timeout of one helm invocation")
	f.StringVar(&opts.templateDir, "template-dir", "", "chart-relative template directory (default: resolved from --kube-version)")
	f.StringVar(&opts.username, "username", "", "OCI registry username")
	f.StringVar(&opts.password, "password", "", "OCI registry password")
	f.BoolVar(&opts.plainHTTP, "plain-http", false, "use plain HTTP for the OCI registry")
}

// outputOptions holds the flags shared by every command that writes files.
type outputOptions struct {
	dryRun bool
	diff   bool
}

func registerOutputFlags(cmd *cobra.Command, opts *outputOptions) {
	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "do not write any file")
	f.BoolVar(&opts.diff, "diff", false, "print a unified diff of every changed output file")
}

func registerLabelFlag(cmd *cobra.Command) {
	cmd.Flags().String("cluster-label", rules.DefaultLabel, "label removed from expressions and dashboards")
}

func registerDashboardFlags(cmd *cobra.Command) {
	registerLabelFlag(cmd)

	f := cmd.Flags()
	f.String("datasource", dashboard.DefaultDatasource, "datasource bound to portable dashboards")
	f.String("dashboard-mode", string(dashboard.ModeText), "where filters are removed: text, structural")
}
