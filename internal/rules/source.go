package rules

import (
	"k8s.io/apimachinery/pkg/util/intstr"
)

// SourceGroup is a rule group as it appears in the spec of a rendered
// PrometheusRule resource.
type SourceGroup struct {
	Name     string       `json:"name"`
	Interval string       `json:"interval,omitempty"`
	Rules    []SourceRule `json:"rules,omitempty"`
}

// SourceRule is a rule as it appears in a PrometheusRule resource. The
// PrometheusRule CRD declares expr as int-or-string, so a bare numeric
// expression such as `expr: 1` decodes without error.
type SourceRule struct {
	Alert         string              `json:"alert,omitempty"`
	Record        string              `json:"record,omitempty"`
	Expr          *intstr.IntOrString `json:"expr,omitempty"`
	For           string              `json:"for,omitempty"`
	KeepFiringFor string              `json:"keep_firing_for,omitempty"`
	Labels        map[string]string   `json:"labels,omitempty"`
	Annotations   map[string]string   `json:"annotations,omitempty"`
}

// HasExpr reports whether the rule carries an expression at all.
func (r SourceRule) HasExpr() bool {
	return r.Expr != nil && r.Expr.String() != ""
}
