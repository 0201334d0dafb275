package rules

import (
	"regexp"
	"strings"
)

// DefaultLabel is the label kube-prometheus-stack adds for multi-cluster
// setups and that a standalone Prometheus never has.
const DefaultLabel = "cluster"

// labelListClause matches a PromQL clause that takes a parenthesised label
// list. The keyword is captured so its original case survives the rewrite.
var labelListClause = regexp.MustCompile(`(?i)\b(by|without|on|ignoring|group_left|group_right)(\s*)\(([^()]*)\)`)

// Stripper removes every reference to one label from PromQL expressions.
// It works on raw text, not on a parsed query. The rewrite steps run in a
// fixed order: selector filters first, then grouping clauses, then vector
// matching modifiers; later steps rely on earlier ones having collapsed the
// surrounding commas.
type Stripper struct {
	label string

	trailingFilter *regexp.Regexp
	leadingFilter  *regexp.Regexp
	soleFilter     *regexp.Regexp
	emptyBy        *regexp.Regexp
}

// NewStripper compiles the rewrite patterns for label.
func NewStripper(label string) *Stripper {
	if label == "" {
		label = DefaultLabel
	}

	q := regexp.QuoteMeta(label)
	filter := q + `\s*=~?\s*"[^"]*"`

	return &Stripper{
		label:          label,
		trailingFilter: regexp.MustCompile(`,\s*` + filter),
		leadingFilter:  regexp.MustCompile(`\b` + filter + `\s*,\s*`),
		soleFilter:     regexp.MustCompile(`\{\s*` + filter + `\s*\}`),
		emptyBy:        regexp.MustCompile(`(?i)\s*\bby\s*\(\s*\)`),
	}
}

// Label returns the label this stripper removes.
func (s *Stripper) Label() string { return s.label }

// Strip returns expr with all filters, grouping entries and matching
// modifier entries for the label removed. A selector left without filters
// renders as {} and an emptied by() clause disappears entirely.
func (s *Stripper) Strip(expr string) string {
	expr = s.trailingFilter.ReplaceAllString(expr, "")
	expr = s.leadingFilter.ReplaceAllString(expr, "")
	expr = s.soleFilter.ReplaceAllString(expr, "{}")

	expr = s.stripClauses(expr, "by", "without")
	expr = s.stripClauses(expr, "group_left", "group_right", "on", "ignoring")

	expr = s.emptyBy.ReplaceAllString(expr, "")

	return strings.TrimSpace(expr)
}

// stripClauses removes the label from the argument list of every clause
// whose keyword is one of keywords.
func (s *Stripper) stripClauses(expr string, keywords ...string) string {
	return labelListClause.ReplaceAllStringFunc(expr, func(m string) string {
		parts := labelListClause.FindStringSubmatch(m)
		keyword, space, list := parts[1], parts[2], parts[3]

		if !containsFold(keywords, keyword) {
			return m
		}

		members := strings.Split(list, ",")
		kept := make([]string, 0, len(members))
		removed := false

		for _, member := range members {
			name := strings.TrimSpace(member)
			if name == s.label {
				removed = true
				continue
			}

			if name != "" {
				kept = append(kept, name)
			}
		}

		if !removed {
			return m
		}

		return keyword + space + "(" + strings.Join(kept, ", ") + ")"
	})
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}

	return false
}

// StripLabel removes label from expr using a one-off Stripper.
func StripLabel(expr, label string) string {
	return NewStripper(label).Strip(expr)
}
