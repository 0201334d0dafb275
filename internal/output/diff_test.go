package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiff(t *testing.T) {
	d, err := ComputeDiff("a\nb\nc\n", "a\nB\nc\n", DefaultDiffOptions("rules.yml"))
	require.NoError(t, err)
	assert.True(t, d.HasDifferences)
	assert.Contains(t, d.Unified, "--- a/rules.yml")
	assert.Contains(t, d.Unified, "+++ b/rules.yml")
	assert.Contains(t, d.Unified, "-b\n")
	assert.Contains(t, d.Unified, "+B\n")
}

func TestComputeDiff_NoChanges(t *testing.T) {
	d, err := ComputeDiff("same\n", "same\n", DefaultDiffOptions("x"))
	require.NoError(t, err)
	assert.False(t, d.HasDifferences)

	var buf bytes.Buffer
	WriteDiff(&buf, d, false)
	assert.Empty(t, buf.String())
}

func TestComputeDiff_NewFile(t *testing.T) {
	d, err := ComputeDiff("", "groups: []\n", DefaultDiffOptions("rules.yml"))
	require.NoError(t, err)
	assert.True(t, d.HasDifferences)
	assert.Contains(t, d.Unified, "+groups: []")
}

func TestWriteDiff_Color(t *testing.T) {
	d, err := ComputeDiff("a\n", "b\n", DefaultDiffOptions("f"))
	require.NoError(t, err)

	var plain, colored bytes.Buffer
	WriteDiff(&plain, d, false)
	WriteDiff(&colored, d, true)

	assert.NotContains(t, plain.String(), "\033[")
	assert.Contains(t, colored.String(), "\033[31m-a\033[0m")
	assert.Contains(t, colored.String(), "\033[32m+b\033[0m")
}
