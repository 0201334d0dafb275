// Package renderer renders single templates of the kube-prometheus-stack
// chart, either through the helm binary or in-process with the Helm SDK
// engine.
package renderer

import (
	"context"
	"fmt"
	"strings"
)

// Renderer renders exactly one chart template, like
// "helm template --show-only <template>".
type Renderer interface {
	RenderTemplate(ctx context.Context, templatePath string) ([]byte, error)
}

// Kind names a Renderer implementation.
type Kind string

const (
	// KindExec runs the helm binary once per template.
	KindExec Kind = "exec"
	// KindEngine renders the chart in-process.
	KindEngine Kind = "engine"
)

// ParseKind validates a renderer name. The empty string selects KindExec.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindExec:
		return KindExec, nil
	case KindEngine:
		return KindEngine, nil
	default:
		return "", fmt.Errorf("invalid renderer %q (expected exec or engine)", s)
	}
}

// RenderError reports a template that could not be rendered. Callers skip
// the template and continue with the next one.
type RenderError struct {
	// Template is the chart-relative template path.
	Template string
	// ExitCode is the helm exit code, or 0 for in-process failures.
	ExitCode int
	// Stderr is the captured diagnostic output of helm.
	Stderr string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "rendering %s", e.Template)

	if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RenderError) Unwrap() error {
	return e.Err
}
