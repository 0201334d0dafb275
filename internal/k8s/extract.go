package k8s

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/hupe1980/kpsport/internal/dashboard"
	"github.com/hupe1980/kpsport/internal/rules"
)

var (
	// ErrNoData is returned when a ConfigMap has no data section.
	ErrNoData = errors.New("no data section found")

	// ErrNoJSON is returned when a ConfigMap data section has no *.json key.
	ErrNoJSON = errors.New("no .json key in data section")
)

// DataEntry is one key of a ConfigMap data section.
type DataEntry struct {
	Key   string
	Value string
}

// DashboardEntries returns the data entries of a ConfigMap whose key ends
// in ".json", ordered by key.
func DashboardEntries(r *Resource) ([]DataEntry, error) {
	if r == nil || r.Object == nil {
		return nil, ErrNoData
	}

	data, found, err := unstructured.NestedMap(r.Object.Object, "data")
	if err != nil {
		return nil, fmt.Errorf("reading data of %s: %w", r.QualifiedName(), err)
	}

	if !found || len(data) == 0 {
		return nil, ErrNoData
	}

	keys := make([]string, 0, len(data))

	for k := range data {
		if strings.HasSuffix(k, ".json") {
			keys = append(keys, k)
		}
	}

	if len(keys) == 0 {
		return nil, ErrNoJSON
	}

	sort.Strings(keys)

	entries := make([]DataEntry, 0, len(keys))

	for _, k := range keys {
		v, ok := data[k].(string)
		if !ok {
			return nil, fmt.Errorf("data key %q of %s is %T, not a string", k, r.QualifiedName(), data[k])
		}

		entries = append(entries, DataEntry{Key: k, Value: v})
	}

	return entries, nil
}

// DashboardJSON returns the first .json data entry of cm that parses as a
// dashboard, re-indented.
func DashboardJSON(cm *Resource) ([]byte, error) {
	entries, err := DashboardEntries(cm)
	if err != nil {
		return nil, err
	}

	var lastErr error

	for _, e := range entries {
		d, err := dashboard.Parse([]byte(e.Value))
		if err != nil {
			lastErr = fmt.Errorf("invalid JSON in %s: %w", e.Key, err)
			continue
		}

		return d.MarshalIndent()
	}

	return nil, lastErr
}

type prometheusRuleSpec struct {
	Groups []rules.SourceGroup `json:"groups"`
}

// PrometheusRuleGroups converts the spec.groups of a PrometheusRule into
// source rule groups. A missing or null groups list yields rules.ErrNoGroups.
func PrometheusRuleGroups(r *Resource) ([]rules.SourceGroup, error) {
	if r == nil || r.Object == nil {
		return nil, rules.ErrNoGroups
	}

	spec, found, err := unstructured.NestedMap(r.Object.Object, "spec")
	if err != nil {
		return nil, fmt.Errorf("reading spec of %s: %w", r.QualifiedName(), err)
	}

	if !found || spec["groups"] == nil {
		return nil, rules.ErrNoGroups
	}

	var out prometheusRuleSpec
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(spec, &out); err != nil {
		return nil, fmt.Errorf("converting spec of %s: %w", r.QualifiedName(), err)
	}

	return out.Groups, nil
}
