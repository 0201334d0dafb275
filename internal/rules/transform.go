package rules

import (
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Rule fields that survive the transformation. Everything else found on a
// source rule is dropped.
const (
	FieldAlert         = "alert"
	FieldRecord        = "record"
	FieldFor           = "for"
	FieldKeepFiringFor = "keep_firing_for"
	FieldLabels        = "labels"
	FieldAnnotations   = "annotations"
)

// DefaultFields returns the allow-list of rule fields copied next to expr.
func DefaultFields() []string {
	return []string{FieldAlert, FieldRecord, FieldFor, FieldKeepFiringFor, FieldLabels, FieldAnnotations}
}

// TransformOptions configures Transform.
type TransformOptions struct {
	// Label is removed from every expression. Defaults to DefaultLabel.
	Label string

	// Fields is the allow-list of rule fields copied verbatim. Nil means
	// DefaultFields.
	Fields []string
}

// TransformStats counts what Transform dropped.
type TransformStats struct {
	// DroppedRules is the number of rules without an expression.
	DroppedRules int

	// DroppedGroups names the groups left without rules.
	DroppedGroups []string
}

// Transform converts source rule groups into a standalone rule document.
// Group and rule order is preserved. Rules without expr are skipped, and a
// group whose rules were all skipped is omitted.
func Transform(groups []SourceGroup, opts TransformOptions) (Document, TransformStats) {
	stripper := NewStripper(opts.Label)
	fields := fieldSet(opts.Fields)

	var (
		doc   Document
		stats TransformStats
	)

	doc.Groups = make([]Group, 0, len(groups))

	for _, sg := range groups {
		g := Group{
			Name:     sg.Name,
			Interval: sg.Interval,
			Rules:    make([]Rule, 0, len(sg.Rules)),
		}

		if g.Name == "" {
			g.Name = "unknown"
		}

		for _, sr := range sg.Rules {
			if !sr.HasExpr() {
				stats.DroppedRules++
				continue
			}

			g.Rules = append(g.Rules, transformRule(sr, stripper, fields))
		}

		if len(g.Rules) == 0 {
			stats.DroppedGroups = append(stats.DroppedGroups, g.Name)
			continue
		}

		doc.Groups = append(doc.Groups, g)
	}

	return doc, stats
}

// Retransform feeds an already transformed document through the stripper
// again. Since the label is gone after the first pass, the result equals
// the input.
func Retransform(doc Document, opts TransformOptions) (Document, TransformStats) {
	return Transform(ToSource(doc), opts)
}

// ToSource converts a rule document back into source groups.
func ToSource(doc Document) []SourceGroup {
	groups := make([]SourceGroup, 0, len(doc.Groups))

	for _, g := range doc.Groups {
		sg := SourceGroup{Name: g.Name, Interval: g.Interval}

		for _, r := range g.Rules {
			expr := intstr.FromString(r.Expr)
			sg.Rules = append(sg.Rules, SourceRule{
				Alert:         r.Alert,
				Record:        r.Record,
				Expr:          &expr,
				For:           r.For,
				KeepFiringFor: r.KeepFiringFor,
				Labels:        r.Labels,
				Annotations:   r.Annotations,
			})
		}

		groups = append(groups, sg)
	}

	return groups
}

func transformRule(sr SourceRule, stripper *Stripper, fields map[string]bool) Rule {
	r := Rule{Expr: stripper.Strip(sr.Expr.String())}

	if fields[FieldAlert] {
		r.Alert = sr.Alert
	}

	if fields[FieldRecord] {
		r.Record = sr.Record
	}

	if fields[FieldFor] {
		r.For = sr.For
	}

	if fields[FieldKeepFiringFor] {
		r.KeepFiringFor = sr.KeepFiringFor
	}

	if fields[FieldLabels] {
		r.Labels = sr.Labels
	}

	if fields[FieldAnnotations] {
		r.Annotations = sr.Annotations
	}

	return r
}

func fieldSet(fields []string) map[string]bool {
	if fields == nil {
		fields = DefaultFields()
	}

	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}

	return set
}
