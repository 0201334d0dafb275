// Package watch re-runs a conversion stage whenever the chart templates or
// the value files change. Events are debounced so that a burst of writes
// triggers a single run.
package watch
