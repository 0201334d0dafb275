package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_WritesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "a.json")

	var buf bytes.Buffer
	res, err := NewEmitter(EmitOptions{}, &buf, nil).Emit(path, []byte("{}\n"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Written)
	assert.Empty(t, buf.String())

	got, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(got))
}

func TestEmitter_SkipsUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	res, err := NewEmitter(EmitOptions{Diff: true}, &bytes.Buffer{}, nil).Emit(path, []byte("{}\n"))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Written)
}

func TestEmitter_DryRunWithDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	var buf bytes.Buffer
	e := NewEmitter(EmitOptions{DryRun: true, Diff: true}, &buf, nil)
	assert.True(t, e.DryRun())

	res, err := e.Emit(path, []byte("new\n"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Written)
	assert.Contains(t, buf.String(), "-old")
	assert.Contains(t, buf.String(), "+new")

	got, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(got))
}

func TestEmitter_UnreadableTarget(t *testing.T) {
	dir := t.TempDir()

	_, err := NewEmitter(EmitOptions{}, &bytes.Buffer{}, nil).Emit(dir, []byte("x"))
	assert.ErrorContains(t, err, "reading existing")
}
