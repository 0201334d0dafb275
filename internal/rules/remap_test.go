package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remapInput = `groups:
- name: node
  rules:
  - alert: NodeDown
    expr: up{job="node-exporter"} == 0
  - alert: KubeletDown
    expr: absent(up{job="kubelet"}) or up{job="kubelet"} == 0
  - alert: Etcd
    expr: up{job="etcd"} == 0
  - alert: StateMetrics
    expr: up{job="kube-state-metrics"} == 0
`

func TestRemapJobs(t *testing.T) {
	out, report := RemapJobs(remapInput, DefaultJobMappings())

	assert.Contains(t, out, `up{job="kubernetes-service-endpoints"} == 0`)
	assert.Contains(t, out, `absent(up{job="kubernetes-nodes-cadvisor"}) or up{job="kubernetes-nodes-cadvisor"} == 0`)
	assert.NotContains(t, out, `job="node-exporter"`)
	assert.NotContains(t, out, `job="kubelet"`)

	assert.Equal(t, []JobChange{
		{From: "node-exporter", To: "kubernetes-service-endpoints", Count: 1},
		{From: "kube-state-metrics", To: "kubernetes-service-endpoints", Count: 1},
		{From: "kubelet", To: "kubernetes-nodes-cadvisor", Count: 2},
	}, report.Changes)
	assert.Equal(t, 4, report.Total())

	assert.Equal(t, []JobCount{
		{Job: "kubernetes-service-endpoints", Count: 2},
		{Job: "kubernetes-nodes-cadvisor", Count: 2},
		{Job: "etcd", Count: 1},
	}, report.Remaining)
}

func TestRemapJobs_SequentialOrder(t *testing.T) {
	text := `up{job="a"} + up{job="b"}`

	out, report := RemapJobs(text, []JobMapping{{From: "a", To: "b"}, {From: "b", To: "c"}})
	assert.Equal(t, `up{job="c"} + up{job="c"}`, out)
	assert.Equal(t, 1, report.Changes[0].Count)
	// The second mapping sees the output of the first one.
	assert.Equal(t, 2, report.Changes[1].Count)

	out, _ = RemapJobs(text, []JobMapping{{From: "b", To: "c"}, {From: "a", To: "b"}})
	assert.Equal(t, `up{job="b"} + up{job="c"}`, out)
}

func TestRemapJobs_Idempotent(t *testing.T) {
	once, _ := RemapJobs(remapInput, DefaultJobMappings())
	twice, report := RemapJobs(once, DefaultJobMappings())

	assert.Equal(t, once, twice)
	assert.Empty(t, report.Changes)
	assert.Zero(t, report.Total())
}

func TestJobFrequencies_TiesKeepFirstSeenOrder(t *testing.T) {
	text := `job="z" job="y" job="x" job="y"`

	assert.Equal(t, []JobCount{
		{Job: "y", Count: 2},
		{Job: "z", Count: 1},
		{Job: "x", Count: 1},
	}, JobFrequencies(text))
	assert.Empty(t, JobFrequencies("no jobs here"))
}

func TestParseJobMapping(t *testing.T) {
	m, err := ParseJobMapping("kubelet = kubernetes-nodes")
	require.NoError(t, err)
	assert.Equal(t, JobMapping{From: "kubelet", To: "kubernetes-nodes"}, m)

	for _, bad := range []string{"kubelet", "=x", "x="} {
		_, err := ParseJobMapping(bad)
		assert.Error(t, err, bad)
	}
}
