package rules

import (
	"fmt"
	"strings"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/promql/parser"
)

// MatchMode selects how FilterByJob decides whether an expression selects
// an allowed job.
type MatchMode string

const (
	// MatchSubstring keeps a rule when any `job="<allowed>"` string occurs
	// anywhere in the expression text. A job name that only appears inside
	// a comment or another label value still counts.
	MatchSubstring MatchMode = "substring"

	// MatchSelector parses the expression and only considers equality
	// matchers on the job label. Expressions that fail to parse fall back
	// to MatchSubstring.
	MatchSelector MatchMode = "selector"
)

// ParseMatchMode validates a match mode name. The empty string selects
// MatchSubstring.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchSelector:
		return MatchSelector, nil
	default:
		return "", fmt.Errorf("invalid job match mode %q: must be one of substring, selector", s)
	}
}

// RemovedRule identifies a rule dropped by FilterByJob.
type RemovedRule struct {
	Group string
	Rule  string
}

// KeptGroup is a group that survived filtering with its remaining rule count.
type KeptGroup struct {
	Name  string
	Rules int
}

// FilterReport summarises a FilterByJob run.
type FilterReport struct {
	Kept          []KeptGroup
	RemovedRules  []RemovedRule
	RemovedGroups []string
}

// FilterByJob keeps every rule whose expression has no job filter, or whose
// job filter names a member of allowed. Groups left without rules are
// dropped. The input document is not modified.
func FilterByJob(doc Document, allowed []string, mode MatchMode) (Document, FilterReport) {
	var (
		out    Document
		report FilterReport
	)

	out.Groups = make([]Group, 0, len(doc.Groups))

	for _, g := range doc.Groups {
		kept := make([]Rule, 0, len(g.Rules))

		for _, r := range g.Rules {
			if KeepRule(r.Expr, allowed, mode) {
				kept = append(kept, r)
				continue
			}

			report.RemovedRules = append(report.RemovedRules, RemovedRule{Group: g.Name, Rule: r.Name()})
		}

		if len(kept) == 0 {
			report.RemovedGroups = append(report.RemovedGroups, g.Name)
			continue
		}

		g.Rules = kept
		out.Groups = append(out.Groups, g)
		report.Kept = append(report.Kept, KeptGroup{Name: g.Name, Rules: len(kept)})
	}

	return out, report
}

// KeepRule reports whether a rule with expression expr survives the job
// filter.
func KeepRule(expr string, allowed []string, mode MatchMode) bool {
	if mode == MatchSelector {
		if jobs, ok := selectorJobs(expr); ok {
			if len(jobs) == 0 {
				return true
			}

			for _, j := range jobs {
				if contains(allowed, j) {
					return true
				}
			}

			return false
		}
	}

	if !strings.Contains(expr, `job="`) {
		return true
	}

	for _, job := range allowed {
		if strings.Contains(expr, `job="`+job+`"`) {
			return true
		}
	}

	return false
}

// selectorJobs returns the values of all job equality matchers in expr.
// The boolean is false when expr is not valid PromQL.
func selectorJobs(expr string) ([]string, bool) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, false
	}

	var jobs []string

	parser.Inspect(node, func(n parser.Node, _ []parser.Node) error {
		vs, ok := n.(*parser.VectorSelector)
		if !ok {
			return nil
		}

		for _, m := range vs.LabelMatchers {
			if m.Name == "job" && m.Type == labels.MatchEqual {
				jobs = append(jobs, m.Value)
			}
		}

		return nil
	})

	return jobs, true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
