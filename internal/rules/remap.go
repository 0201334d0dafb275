package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JobMapping renames one scrape job.
type JobMapping struct {
	From string `json:"from" mapstructure:"from" yaml:"from"`
	To   string `json:"to" mapstructure:"to" yaml:"to"`
}

// ParseJobMapping parses an "old=new" pair.
func ParseJobMapping(s string) (JobMapping, error) {
	from, to, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return JobMapping{}, fmt.Errorf("invalid job mapping %q: expected old=new", s)
	}

	return JobMapping{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}, nil
}

// DefaultJobMappings maps the kube-prometheus-stack job names onto the job
// names of the stock Prometheus Kubernetes scrape configuration.
func DefaultJobMappings() []JobMapping {
	return []JobMapping{
		{From: "node-exporter", To: "kubernetes-service-endpoints"},
		{From: "kube-state-metrics", To: "kubernetes-service-endpoints"},
		{From: "kubelet", To: "kubernetes-nodes-cadvisor"},
		{From: "apiserver", To: "kubernetes-apiservers"},
	}
}

// DefaultAllowedJobs is the set of jobs the stock Prometheus configuration
// scrapes, i.e. the targets of DefaultJobMappings.
func DefaultAllowedJobs() []string {
	return []string{
		"kubernetes-service-endpoints",
		"kubernetes-nodes-cadvisor",
		"kubernetes-apiservers",
	}
}

// JobChange records how often one mapping was applied.
type JobChange struct {
	From  string
	To    string
	Count int
}

// RemapReport summarises a RemapJobs run.
type RemapReport struct {
	// Changes holds one entry per mapping that replaced at least once, in
	// mapping order.
	Changes []JobChange

	// Remaining is the frequency of job="..." filters left in the output.
	Remaining []JobCount
}

// Total returns the number of replacements across all mappings.
func (r RemapReport) Total() int {
	n := 0
	for _, c := range r.Changes {
		n += c.Count
	}

	return n
}

// RemapJobs replaces every literal job="<from>" with job="<to>". Mappings
// are applied one after another in slice order, so a later mapping sees
// the output of the earlier ones. Each count is taken on the text as it
// was right before that mapping ran.
func RemapJobs(text string, mappings []JobMapping) (string, RemapReport) {
	var report RemapReport

	for _, m := range mappings {
		pattern := jobFilter(m.From)

		count := strings.Count(text, pattern)
		if count == 0 {
			continue
		}

		text = strings.ReplaceAll(text, pattern, jobFilter(m.To))
		report.Changes = append(report.Changes, JobChange{From: m.From, To: m.To, Count: count})
	}

	report.Remaining = JobFrequencies(text)

	return text, report
}

func jobFilter(job string) string {
	return `job="` + job + `"`
}

// JobCount is the number of occurrences of one job filter.
type JobCount struct {
	Job   string
	Count int
}

var jobPattern = regexp.MustCompile(`job="([^"]+)"`)

// JobFrequencies counts every job="..." occurrence in text. The result is
// ordered by count, most frequent first; jobs with equal counts keep the
// order in which they first appear.
func JobFrequencies(text string) []JobCount {
	counts := orderedmap.New[string, int]()

	for _, m := range jobPattern.FindAllStringSubmatch(text, -1) {
		n, _ := counts.Get(m[1])
		counts.Set(m[1], n+1)
	}

	result := make([]JobCount, 0, counts.Len())
	for pair := counts.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, JobCount{Job: pair.Key, Count: pair.Value})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})

	return result
}
