package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultHelmBinary is looked up on PATH when no binary is configured.
const DefaultHelmBinary = "helm"

// DefaultTimeout bounds a single helm invocation.
const DefaultTimeout = 2 * time.Minute

// ExecOptions configures an ExecRenderer.
type ExecOptions struct {
	// Binary is the helm executable.
	Binary string
	// ChartDir is the chart root; helm runs with it as working directory.
	ChartDir string
	// KubeVersion is passed as --kube-version when set.
	KubeVersion string
	// Values are passed as --values/--set flags.
	Values ValuesOptions
	// Timeout bounds each invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// compile-time interface conformance check.
var _ Renderer = (*ExecRenderer)(nil)

// ExecRenderer renders templates by running "helm template".
type ExecRenderer struct {
	opts ExecOptions
	args []string
}

// NewExecRenderer validates the value flags and returns an ExecRenderer.
func NewExecRenderer(opts ExecOptions) (*ExecRenderer, error) {
	if opts.Binary == "" {
		opts.Binary = DefaultHelmBinary
	}

	if opts.ChartDir == "" {
		opts.ChartDir = "."
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	args, err := opts.Values.Args()
	if err != nil {
		return nil, err
	}

	if opts.KubeVersion != "" {
		args = append(args, "--kube-version", opts.KubeVersion)
	}

	return &ExecRenderer{opts: opts, args: args}, nil
}

// Command returns the argument list used for templatePath.
func (r *ExecRenderer) Command(templatePath string) []string {
	args := make([]string, 0, len(r.args)+5)
	args = append(args, r.opts.Binary, "template", ".")
	args = append(args, r.args...)
	args = append(args, "--show-only", templatePath)

	return args
}

// RenderTemplate runs helm and returns its standard output. A non-zero
// exit yields a *RenderError carrying the captured standard error.
func (r *ExecRenderer) RenderTemplate(ctx context.Context, templatePath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	argv := r.Command(templatePath)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // helm binary and arguments come from configuration
	cmd.Dir = r.opts.ChartDir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		rerr := &RenderError{Template: templatePath, Stderr: stderr.String()}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			rerr.ExitCode = exitErr.ExitCode()
		}

		switch {
		case ctx.Err() != nil:
			rerr.Err = fmt.Errorf("helm template: %w", ctx.Err())
		case rerr.ExitCode == 0:
			rerr.Err = fmt.Errorf("running %s: %w", r.opts.Binary, err)
		case strings.Contains(rerr.Stderr, "could not find template"):
			// --show-only of a template that rendered nothing.
			rerr.Err = ErrTemplateNotFound
		}

		return nil, rerr
	}

	return stdout.Bytes(), nil
}
