package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorRules = `groups:
- name: node.rules
  rules:
  - alert: NodeDown
    expr: up{job="node-exporter"} == 0
  - alert: KubeletDown
    expr: absent(up{job="kubelet"} == 1)
  - record: node:load1
    expr: sum(node_load1)
- name: dns.rules
  rules:
  - alert: CoreDNSDown
    expr: absent(up{job="coredns"} == 1)
`

// ---------------------------------------------------------------------------
// remap-jobs
// ---------------------------------------------------------------------------

func TestRemapJobs_DefaultMappings(t *testing.T) {
	in := writeFile(t, "rules.yml", operatorRules)
	out := filepath.Join(t.TempDir(), "rules-updated.yml")

	_, stderr, err := executeCommand("remap-jobs", "-i", in, "-o", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `up{job="kubernetes-service-endpoints"} == 0`)
	assert.Contains(t, string(data), `absent(up{job="kubernetes-nodes-cadvisor"} == 1)`)
	assert.Contains(t, string(data), `job="coredns"`)

	assert.Contains(t, stderr, "Remapped 2 jobs, 2 changes")
	assert.Contains(t, stderr, "Wrote "+out)
	assert.Contains(t, stderr, "Remaining job filters:")
	assert.Contains(t, stderr, "coredns")
}

func TestRemapJobs_MapFlagReplacesConfig(t *testing.T) {
	in := writeFile(t, "rules.yml", operatorRules)
	out := filepath.Join(t.TempDir(), "rules-updated.yml")

	_, stderr, err := executeCommand("remap-jobs", "-i", in, "-o", out, "--map", "coredns=kube-dns")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `job="kube-dns"`)
	assert.Contains(t, string(data), `job="node-exporter"`)
	assert.Contains(t, stderr, "Remapped 1 jobs, 1 changes")
}

func TestRemapJobs_MappingsFromConfig(t *testing.T) {
	cfg := writeFile(t, "kpsport.yaml", "job-mappings:\n  - from: node-exporter\n    to: node\n")
	in := writeFile(t, "rules.yml", operatorRules)
	out := filepath.Join(t.TempDir(), "rules-updated.yml")

	_, _, err := executeCommand("--config", cfg, "remap-jobs", "-i", in, "-o", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `job="node"`)
	assert.Contains(t, string(data), `job="kubelet"`)
}

func TestRemapJobs_NoChanges(t *testing.T) {
	in := writeFile(t, "rules.yml", "groups: []\n")
	out := filepath.Join(t.TempDir(), "rules-updated.yml")

	_, stderr, err := executeCommand("remap-jobs", "-i", in, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "No job names changed.")
	assert.FileExists(t, out)
}

func TestRemapJobs_InvalidMapping(t *testing.T) {
	in := writeFile(t, "rules.yml", operatorRules)

	_, _, err := executeCommand("remap-jobs", "-i", in, "--map", "nope")
	requireExitCode(t, err, 2)
}

func TestRemapJobs_MissingInput(t *testing.T) {
	_, _, err := executeCommand("remap-jobs", "-i", filepath.Join(t.TempDir(), "missing.yml"))
	requireExitCode(t, err, 1)
}

// ---------------------------------------------------------------------------
// clean-rules
// ---------------------------------------------------------------------------

func TestCleanRules_AfterRemap(t *testing.T) {
	in := writeFile(t, "rules.yml", operatorRules)
	dir := t.TempDir()
	updated := filepath.Join(dir, "rules-updated.yml")
	clean := filepath.Join(dir, "rules-clean.yml")

	_, _, err := executeCommand("remap-jobs", "-i", in, "-o", updated)
	require.NoError(t, err)

	_, stderr, err := executeCommand("clean-rules", "-i", updated, "-o", clean)
	require.NoError(t, err)

	data, err := os.ReadFile(clean)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: node.rules")
	assert.Contains(t, string(data), "node:load1")
	assert.NotContains(t, string(data), "dns.rules")

	assert.Contains(t, stderr, "kept node.rules (3 rules)")
	assert.Contains(t, stderr, "Removed 1 groups and 1 rules; 1 groups with 3 rules remain")
	assert.Contains(t, stderr, "Job distribution:")
	assert.Contains(t, stderr, "kubernetes-service-endpoints")
}

func TestCleanRules_AllowFlag(t *testing.T) {
	in := writeFile(t, "rules.yml", operatorRules)
	out := filepath.Join(t.TempDir(), "rules-clean.yml")

	_, stderr, err := executeCommand("clean-rules", "-i", in, "-o", out, "--allow", "coredns")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CoreDNSDown")
	assert.Contains(t, string(data), "node:load1")
	assert.NotContains(t, string(data), "NodeDown")
	assert.Contains(t, stderr, "Removed 0 groups and 2 rules")
}

func TestCleanRules_SelectorMode(t *testing.T) {
	in := writeFile(t, "rules.yml", `groups:
- name: cronjobs
  rules:
  - alert: CronJobFailed
    expr: kube_job_failed{cronjob="backup"} > 0
`)
	dir := t.TempDir()

	// The cronjob label looks like a job filter to substring matching.
	_, _, err := executeCommand("clean-rules", "-i", in, "-o", filepath.Join(dir, "substring.yml"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "substring.yml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "CronJobFailed")

	_, _, err = executeCommand("clean-rules", "-i", in, "-o", filepath.Join(dir, "selector.yml"), "--job-match", "selector")
	require.NoError(t, err)

	data, err = os.ReadFile(filepath.Join(dir, "selector.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "CronJobFailed")
}

func TestCleanRules_InvalidJobMatch(t *testing.T) {
	_, _, err := executeCommand("clean-rules", "--job-match", "regex")
	requireExitCode(t, err, 2)
}

func TestCleanRules_NoGroupsWritesEmptyRuleSet(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no groups key", "foo: bar\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := writeFile(t, "rules.yml", tt.content)
			out := filepath.Join(t.TempDir(), "out.yml")

			_, stderr, err := executeCommand("clean-rules", "-i", in, "-o", out)
			require.NoError(t, err)
			assert.Contains(t, stderr, "no groups found")
			assert.Contains(t, stderr, "Removed 0 groups and 0 rules; 0 groups with 0 rules remain")

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, "groups: []\n", string(data))
		})
	}
}

func TestCleanRules_MalformedInputSkipped(t *testing.T) {
	in := writeFile(t, "rules.yml", "groups: [\n")
	out := filepath.Join(t.TempDir(), "out.yml")

	_, stderr, err := executeCommand("clean-rules", "-i", in, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Skipped "+in)
	assert.NoFileExists(t, out)
}

func TestCleanRules_MissingInput(t *testing.T) {
	_, _, err := executeCommand("clean-rules", "-i", filepath.Join(t.TempDir(), "missing.yml"))
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "reading")
}
