// Package parser splits rendered multi-document YAML and parses it into
// k8s.Resource structs.
package parser

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/kpsport/internal/k8s"
	"github.com/hupe1980/kpsport/internal/yamlutil"
)

// Parser parses raw rendered manifests into k8s Resources.
type Parser interface {
	Parse(ctx context.Context, manifests []byte) ([]*k8s.Resource, error)
}

// compile-time interface conformance check.
var _ Parser = (*DefaultParser)(nil)

// DefaultParser is the default implementation of the Parser interface.
type DefaultParser struct{}

// NewParser creates a new DefaultParser.
func NewParser() *DefaultParser {
	return &DefaultParser{}
}

// Parse splits the manifests into documents and parses each into a Resource.
// Documents without apiVersion or kind are skipped.
func (p *DefaultParser) Parse(_ context.Context, manifests []byte) ([]*k8s.Resource, error) {
	var resources []*k8s.Resource

	for _, doc := range yamlutil.Split(manifests) {
		r, err := parseDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("parsing document %s: %w", doc.Source, err)
		}

		if r != nil {
			resources = append(resources, r)
		}
	}

	return resources, nil
}

// parseDocument parses a single YAML document into a Resource.
// Returns nil (no error) if the document lacks apiVersion or kind.
func parseDocument(doc yamlutil.Document) (*k8s.Resource, error) {
	var obj map[string]interface{}
	if err := sigsyaml.Unmarshal(doc.Body, &obj); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}

	if obj == nil {
		return nil, nil
	}

	apiVersion, _ := obj["apiVersion"].(string)
	kind, _ := obj["kind"].(string)

	if apiVersion == "" || kind == "" {
		return nil, nil
	}

	u := &unstructured.Unstructured{Object: obj}

	return &k8s.Resource{
		GVK:        schema.FromAPIVersionAndKind(apiVersion, kind),
		Name:       u.GetName(),
		Namespace:  u.GetNamespace(),
		Object:     u,
		SourcePath: doc.Source,
	}, nil
}
