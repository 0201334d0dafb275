// Package rules models Prometheus rule documents and implements the
// text-level rewrites that make kube-prometheus-stack rules usable on a
// standalone Prometheus: stripping the cluster label from expressions,
// remapping job names, and dropping rules that select unknown jobs.
package rules

// Document is the top-level persisted unit of a Prometheus rules file.
type Document struct {
	Groups []Group `json:"groups" yaml:"groups"`
}

// Group is a named, ordered collection of alerting and recording rules.
type Group struct {
	Name     string `json:"name" yaml:"name"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
	Rules    []Rule `json:"rules" yaml:"rules"`
}

// Rule is a single alerting or recording rule. Expr is the only field that
// is ever rewritten; the others are carried over verbatim.
type Rule struct {
	Alert         string            `json:"alert,omitempty" yaml:"alert,omitempty"`
	Record        string            `json:"record,omitempty" yaml:"record,omitempty"`
	Expr          string            `json:"expr" yaml:"expr"`
	For           string            `json:"for,omitempty" yaml:"for,omitempty"`
	KeepFiringFor string            `json:"keep_firing_for,omitempty" yaml:"keep_firing_for,omitempty"`
	Labels        map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Name returns the alert name, falling back to the record name, or
// "unknown" when the rule has neither.
func (r Rule) Name() string {
	switch {
	case r.Alert != "":
		return r.Alert
	case r.Record != "":
		return r.Record
	default:
		return "unknown"
	}
}

// RuleCount returns the total number of rules across all groups.
func (d Document) RuleCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Rules)
	}

	return n
}
