package renderer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"helm.sh/helm/v3/pkg/chart"
)

func newTestChart() *chart.Chart {
	return &chart.Chart{
		Metadata: &chart.Metadata{
			Name:       "kube-prometheus-stack",
			Version:    "65.1.0",
			APIVersion: "v2",
			Type:       "application",
		},
		Values: map[string]interface{}{
			"defaultRules": map[string]interface{}{
				"create": true,
			},
		},
		Templates: []*chart.File{
			{
				Name: "templates/grafana/dashboards-1.14/etcd.yaml",
				Data: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: {{ .Release.Name }}-etcd\n  namespace: {{ .Release.Namespace }}\ndata:\n  etcd.json: '{\"title\": \"etcd\"}'\n"),
			},
			{
				Name: "templates/prometheus/rules-1.14/node.yaml",
				Data: []byte("{{- if .Values.defaultRules.create }}\napiVersion: monitoring.coreos.com/v1\nkind: PrometheusRule\nmetadata:\n  name: {{ .Release.Name }}-node\nspec:\n  groups: []\n{{- end }}\n"),
			},
			{
				Name: "templates/version.yaml",
				Data: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: version\ndata:\n  kube: {{ .Capabilities.KubeVersion.Version | quote }}\n"),
			},
			{
				Name: "templates/NOTES.txt",
				Data: []byte("installed"),
			},
		},
	}
}

// ---------------------------------------------------------------------------
// RenderError
// ---------------------------------------------------------------------------

func TestRenderError(t *testing.T) {
	cause := errors.New("boom")
	err := &RenderError{Template: "templates/x.yaml", ExitCode: 1, Stderr: "Error: bad\n", Err: cause}

	assert.Equal(t, "rendering templates/x.yaml: exit code 1: boom: Error: bad", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "rendering t.yaml", (&RenderError{Template: "t.yaml"}).Error())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindExec, k)

	k, err = ParseKind("engine")
	require.NoError(t, err)
	assert.Equal(t, KindEngine, k)

	_, err = ParseKind("kustomize")
	assert.ErrorContains(t, err, "invalid renderer")
}

// ---------------------------------------------------------------------------
// ExecRenderer
// ---------------------------------------------------------------------------

// fakeHelm writes a shell script standing in for helm. It prints its
// working directory and arguments, and fails for templates containing
// "broken".
func fakeHelm(t *testing.T) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake helm needs a POSIX shell")
	}

	script := `#!/bin/sh
for a in "$@"; do
  case "$a" in
    *broken*) echo "Error: could not find template $a in chart" >&2; exit 1 ;;
    *slow*) exec sleep 5 ;;
  esac
done
echo "cwd: $(pwd)"
echo "args: $*"
`
	path := filepath.Join(t.TempDir(), "helm")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700)) //nolint:gosec // test executable

	return path
}

func TestExecRenderer_Command(t *testing.T) {
	values := filepath.Join(t.TempDir(), "values-dev.yaml")

	r, err := NewExecRenderer(ExecOptions{
		Values:      ValuesOptions{ValueFiles: []string{values}, Values: []string{"a=b"}},
		KubeVersion: "1.29.0",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"helm", "template", ".",
		"--values", values,
		"--set", "a=b",
		"--kube-version", "1.29.0",
		"--show-only", "templates/grafana/dashboards-1.14/etcd.yaml",
	}, r.Command("templates/grafana/dashboards-1.14/etcd.yaml"))
}

func TestExecRenderer_RenderTemplate(t *testing.T) {
	chartDir := t.TempDir()

	r, err := NewExecRenderer(ExecOptions{Binary: fakeHelm(t), ChartDir: chartDir})
	require.NoError(t, err)

	out, err := r.RenderTemplate(context.Background(), "templates/a.yaml")
	require.NoError(t, err)

	assert.Contains(t, string(out), filepath.Base(chartDir))
	assert.Contains(t, string(out), "args: template . --show-only templates/a.yaml")
}

func TestExecRenderer_NonZeroExit(t *testing.T) {
	r, err := NewExecRenderer(ExecOptions{Binary: fakeHelm(t), ChartDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.RenderTemplate(context.Background(), "templates/broken.yaml")

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "templates/broken.yaml", rerr.Template)
	assert.Equal(t, 1, rerr.ExitCode)
	assert.Contains(t, rerr.Stderr, "could not find template")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestExecRenderer_Timeout(t *testing.T) {
	r, err := NewExecRenderer(ExecOptions{Binary: fakeHelm(t), ChartDir: t.TempDir(), Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	_, err = r.RenderTemplate(context.Background(), "templates/slow.yaml")

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecRenderer_MissingBinary(t *testing.T) {
	r, err := NewExecRenderer(ExecOptions{Binary: filepath.Join(t.TempDir(), "no-helm"), ChartDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.RenderTemplate(context.Background(), "templates/a.yaml")

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Zero(t, rerr.ExitCode)
	assert.ErrorContains(t, err, "running")
}

// ---------------------------------------------------------------------------
// EngineRenderer
// ---------------------------------------------------------------------------

func TestEngineRenderer_RenderTemplate(t *testing.T) {
	ch := newTestChart()
	r := NewEngineRenderer(ch, ch.Values, EngineOptions{Namespace: "monitoring"})

	out, err := r.RenderTemplate(context.Background(), "templates/grafana/dashboards-1.14/etcd.yaml")
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "# Source: kube-prometheus-stack/templates/grafana/dashboards-1.14/etcd.yaml\n")
	assert.Contains(t, s, "name: release-name-etcd")
	assert.Contains(t, s, "namespace: monitoring")
	assert.NotContains(t, s, "PrometheusRule")
}

func TestEngineRenderer_EmptyTemplateIsNotFound(t *testing.T) {
	ch := newTestChart()
	vals, err := MergeValues(ch, ValuesOptions{Values: []string{"defaultRules.create=false"}})
	require.NoError(t, err)

	r := NewEngineRenderer(ch, vals, EngineOptions{})

	_, err = r.RenderTemplate(context.Background(), "templates/prometheus/rules-1.14/node.yaml")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = r.RenderTemplate(context.Background(), "templates/missing.yaml")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestEngineRenderer_KubeVersion(t *testing.T) {
	ch := newTestChart()
	r := NewEngineRenderer(ch, ch.Values, EngineOptions{KubeVersion: "v1.29.3"})

	out, err := r.RenderTemplate(context.Background(), "templates/version.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(out), `kube: "v1.29.3"`)

	bad := NewEngineRenderer(ch, ch.Values, EngineOptions{KubeVersion: "not-a-version"})
	_, err = bad.RenderTemplate(context.Background(), "templates/version.yaml")
	assert.ErrorContains(t, err, "parsing kube version")
}

func TestEngineRenderer_CancelledContext(t *testing.T) {
	ch := newTestChart()
	r := NewEngineRenderer(ch, ch.Values, EngineOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RenderTemplate(ctx, "templates/version.yaml")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineRenderer_StrictModeFailsEveryTemplate(t *testing.T) {
	ch := newTestChart()
	ch.Templates = append(ch.Templates, &chart.File{
		Name: "templates/strict.yaml",
		Data: []byte("value: {{ .Values.missing.key }}\n"),
	})

	r := NewEngineRenderer(ch, ch.Values, EngineOptions{Strict: true})

	for _, tpl := range []string{"templates/strict.yaml", "templates/version.yaml"} {
		_, err := r.RenderTemplate(context.Background(), tpl)

		var rerr *RenderError
		require.ErrorAs(t, err, &rerr, tpl)
		assert.ErrorContains(t, err, "rendering templates")
	}
}
