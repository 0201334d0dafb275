package rules

import (
	"fmt"
	"strings"

	"github.com/prometheus/prometheus/model/rulefmt"
	"github.com/prometheus/prometheus/promql/parser"
	"gopkg.in/yaml.v3"
)

// Severity indicates the severity of a validation finding.
type Severity int

const (
	// SeverityError means Prometheus would refuse to load the file.
	SeverityError Severity = iota
	// SeverityWarning means the file loads but is probably not portable.
	SeverityWarning
)

// String returns the severity name.
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}

	return "warning"
}

// Finding is a single validation issue.
type Finding struct {
	Severity Severity
	Field    string
	Message  string
}

// Error implements the error interface.
func (f *Finding) Error() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Field, f.Message)
}

// ValidationResult holds all findings from a validation run.
type ValidationResult struct {
	Findings []Finding
	Groups   int
	Rules    int
}

// Errors returns only error-severity findings.
func (r *ValidationResult) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns only warning-severity findings.
func (r *ValidationResult) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// HasErrors returns true if any error-severity findings exist.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors()) > 0
}

// HasWarnings returns true if any warning-severity findings exist.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

func (r *ValidationResult) filter(sev Severity) []Finding {
	var result []Finding

	for _, f := range r.Findings {
		if f.Severity == sev {
			result = append(result, f)
		}
	}

	return result
}

// Format renders the findings one per line followed by a summary line.
func (r *ValidationResult) Format() string {
	var b strings.Builder

	for i := range r.Findings {
		b.WriteString(r.Findings[i].Error())
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%d group(s), %d rule(s): %d error(s), %d warning(s)\n",
		r.Groups, r.Rules, len(r.Errors()), len(r.Warnings()))

	return b.String()
}

// Validate checks a rules file the way Prometheus does when loading it and
// additionally warns about expressions that still reference label.
func Validate(data []byte, label string) *ValidationResult {
	result := &ValidationResult{}

	groups, errs := rulefmt.Parse(data)
	for _, err := range errs {
		result.Findings = append(result.Findings, Finding{
			Severity: SeverityError,
			Field:    "rulefmt",
			Message:  err.Error(),
		})
	}

	if groups == nil || len(errs) > 0 {
		return result
	}

	if label == "" {
		label = DefaultLabel
	}

	result.Groups = len(groups.Groups)

	for _, g := range groups.Groups {
		for i, r := range g.Rules {
			result.Rules++

			expr := exprString(r.Expr)
			if ReferencesLabel(expr, label) {
				result.Findings = append(result.Findings, Finding{
					Severity: SeverityWarning,
					Field:    fmt.Sprintf("groups[%s].rules[%d]", g.Name, i),
					Message:  fmt.Sprintf("expression still references label %q", label),
				})
			}
		}
	}

	return result
}

// exprString extracts the scalar value of a rule's expr node.
func exprString(n yaml.Node) string {
	return n.Value
}

// ReferencesLabel reports whether a valid PromQL expression filters or
// groups on label.
func ReferencesLabel(expr, label string) bool {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return false
	}

	found := false

	parser.Inspect(node, func(n parser.Node, _ []parser.Node) error {
		switch e := n.(type) {
		case *parser.VectorSelector:
			for _, m := range e.LabelMatchers {
				if m.Name == label {
					found = true
				}
			}
		case *parser.AggregateExpr:
			for _, l := range e.Grouping {
				if l == label {
					found = true
				}
			}
		}

		return nil
	})

	return found
}
