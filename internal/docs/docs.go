// Package docs generates the usage guide written next to an extracted
// rules file. The guide explains how to load the rules into a standalone
// Prometheus and lists what was extracted. It supports Markdown, HTML, and
// AsciiDoc output formats.
package docs

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/kpsport/internal/rules"
)

// GroupInfo summarizes one extracted rule group.
type GroupInfo struct {
	Name     string
	Interval string
	Alerts   int
	Records  int
}

// Rules returns the number of rules in the group.
func (g GroupInfo) Rules() int {
	return g.Alerts + g.Records
}

// GuideModel is the data model for guide generation.
type GuideModel struct {
	// Title overrides the document title.
	Title string
	// RulesFile is the base name of the rules file the guide describes.
	RulesFile string
	// Label is the label that was stripped from every expression.
	Label string
	// Groups are the extracted groups in file order.
	Groups []GroupInfo
	// Jobs is the job filter distribution across all expressions.
	Jobs []rules.JobCount
}

// NewGuideModel builds a GuideModel from an extracted rule document.
func NewGuideModel(doc rules.Document, rulesFile, label string) *GuideModel {
	m := &GuideModel{
		RulesFile: path.Base(rulesFile),
		Label:     label,
	}

	var exprs strings.Builder

	for _, g := range doc.Groups {
		gi := GroupInfo{Name: g.Name, Interval: g.Interval}

		for _, r := range g.Rules {
			if r.Record != "" {
				gi.Records++
			} else {
				gi.Alerts++
			}

			exprs.WriteString(r.Expr)
			exprs.WriteByte('\n')
		}

		m.Groups = append(m.Groups, gi)
	}

	m.Jobs = rules.JobFrequencies(exprs.String())

	return m
}

// Totals returns the number of groups and rules in the model.
func (m *GuideModel) Totals() (groups, ruleCount int) {
	for _, g := range m.Groups {
		ruleCount += g.Rules()
	}

	return len(m.Groups), ruleCount
}

func (m *GuideModel) title() string {
	if m.Title != "" {
		return m.Title
	}

	return "Prometheus Rules"
}

// ---------------------------------------------------------------------------
// Snippets
// ---------------------------------------------------------------------------

// PrometheusConfig returns the prometheus.yml fragment that loads rulesFile.
func PrometheusConfig(rulesFile string) (string, error) {
	return marshalSnippet(struct {
		RuleFiles []string `yaml:"rule_files"`
	}{RuleFiles: []string{rulesFile}})
}

type composeService struct {
	Image   string   `yaml:"image"`
	Volumes []string `yaml:"volumes"`
	Command []string `yaml:"command"`
}

// ComposeService returns a Docker Compose file that mounts rulesFile into
// a stock Prometheus container.
func ComposeService(rulesFile string) (string, error) {
	return marshalSnippet(struct {
		Services map[string]composeService `yaml:"services"`
	}{Services: map[string]composeService{
		"prometheus": {
			Image: "prom/prometheus",
			Volumes: []string{
				"./" + rulesFile + ":/etc/prometheus/" + rulesFile,
				"./prometheus.yml:/etc/prometheus/prometheus.yml",
			},
			Command: []string{
				"--config.file=/etc/prometheus/prometheus.yml",
				"--storage.tsdb.path=/prometheus",
			},
		},
	}})
}

// ConfigMapCommand returns the kubectl command that packs rulesFile into a
// ConfigMap.
func ConfigMapCommand(rulesFile string) string {
	return "kubectl create configmap prometheus-rules --from-file=" + rulesFile
}

func marshalSnippet(v any) (string, error) {
	var b strings.Builder

	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("rendering snippet: %w", err)
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("rendering snippet: %w", err)
	}

	return b.String(), nil
}

// snippets bundles the rendered snippets shared by all formatters.
type snippets struct {
	Prometheus string
	Compose    string
	ConfigMap  string
}

func renderSnippets(rulesFile string) (snippets, error) {
	prom, err := PrometheusConfig(rulesFile)
	if err != nil {
		return snippets{}, err
	}

	compose, err := ComposeService(rulesFile)
	if err != nil {
		return snippets{}, err
	}

	return snippets{
		Prometheus: prom,
		Compose:    compose,
		ConfigMap:  ConfigMapCommand(rulesFile),
	}, nil
}

// caveats are the checks a user has to make before loading the rules.
func caveats(label string) []string {
	return []string{
		"`container_*` metrics require cAdvisor; `kube_*` metrics require kube-state-metrics.",
		"Job names are copied from kube-prometheus-stack. Remap them to the scrape jobs of the target Prometheus (`kpsport remap-jobs`).",
		fmt.Sprintf("The `%s` label was removed from every expression. Add it back manually where a rule must stay scoped.", label),
	}
}

// customizations lists what users typically adapt after extraction.
var customizations = []string{
	"Job names",
	"Thresholds",
	"Label selectors",
	"Alert routing in Alertmanager",
}
