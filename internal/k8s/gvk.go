package k8s

import "k8s.io/apimachinery/pkg/runtime/schema"

// MonitoringGroup is the API group of the Prometheus operator CRDs.
const MonitoringGroup = "monitoring.coreos.com"

// IsConfigMap returns true for core ConfigMap resources.
func IsConfigMap(gvk schema.GroupVersionKind) bool {
	return (gvk.Group == "" || gvk.Group == "core") && gvk.Kind == "ConfigMap"
}

// IsPrometheusRule returns true for PrometheusRule custom resources.
func IsPrometheusRule(gvk schema.GroupVersionKind) bool {
	return gvk.Group == MonitoringGroup && gvk.Kind == "PrometheusRule"
}
