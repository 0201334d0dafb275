// Package k8s provides the Kubernetes resource model for rendered chart
// templates.
package k8s

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Resource represents a parsed Kubernetes resource with its GVK, metadata,
// and full unstructured representation.
type Resource struct {
	// GVK is the GroupVersionKind of the resource.
	GVK schema.GroupVersionKind

	// Name is metadata.name.
	Name string

	// Namespace is metadata.namespace (may be empty when the chart leaves
	// it to the release).
	Namespace string

	// SourcePath is the chart template that produced this resource
	// (e.g. "templates/grafana/dashboards-1.14/etcd.yaml"). Empty when the
	// source is unknown.
	SourcePath string

	// Object is the full unstructured representation.
	Object *unstructured.Unstructured
}

// APIVersion returns the apiVersion string (e.g. "monitoring.coreos.com/v1").
func (r *Resource) APIVersion() string {
	if r.Object != nil {
		return r.Object.GetAPIVersion()
	}

	return r.GVK.GroupVersion().String()
}

// Kind returns the resource kind (e.g. "ConfigMap").
func (r *Resource) Kind() string {
	return r.GVK.Kind
}

// QualifiedName returns "kind/name" for display purposes.
func (r *Resource) QualifiedName() string {
	return r.GVK.Kind + "/" + r.Name
}

// First returns the first resource matching pred, or nil.
func First(resources []*Resource, pred func(schema.GroupVersionKind) bool) *Resource {
	for _, r := range resources {
		if pred(r.GVK) {
			return r
		}
	}

	return nil
}
