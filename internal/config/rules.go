package config

import (
	"fmt"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/kpsport/internal/rules"
)

// RulesConfig holds the list-valued rule settings of the config file.
//
//	job-mappings:
//	  - from: node-exporter
//	    to: kubernetes-service-endpoints
//	allowed-jobs: [kubernetes-service-endpoints]
//	rule-fields: [alert, record, for, labels, annotations]
type RulesConfig struct {
	// JobMappings rename job labels, applied in order.
	JobMappings []rules.JobMapping `json:"job-mappings,omitempty"`

	// AllowedJobs are the jobs clean-rules keeps.
	AllowedJobs []string `json:"allowed-jobs,omitempty"`

	// RuleFields are the rule fields copied next to expr.
	RuleFields []string `json:"rule-fields,omitempty"`
}

// DefaultRulesConfig returns the job setup of a plain Prometheus using
// kubernetes_sd_configs.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		JobMappings: rules.DefaultJobMappings(),
		AllowedJobs: rules.DefaultAllowedJobs(),
		RuleFields:  rules.DefaultFields(),
	}
}

// ParseRulesConfig parses the rule sections from raw config file bytes.
// Sections absent from the file stay nil.
func ParseRulesConfig(data []byte) (*RulesConfig, error) {
	var rc RulesConfig

	if err := sigsyaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parsing rules config: %w", err)
	}

	if err := rc.Validate(); err != nil {
		return nil, err
	}

	return &rc, nil
}

// WithDefaults fills the sections left nil. An explicitly empty list is
// kept, so "job-mappings: []" disables remapping.
func (rc RulesConfig) WithDefaults() RulesConfig {
	d := DefaultRulesConfig()

	if rc.JobMappings == nil {
		rc.JobMappings = d.JobMappings
	}

	if rc.AllowedJobs == nil {
		rc.AllowedJobs = d.AllowedJobs
	}

	if rc.RuleFields == nil {
		rc.RuleFields = d.RuleFields
	}

	return rc
}

// Validate checks job mappings and rule fields.
func (rc RulesConfig) Validate() error {
	for i, m := range rc.JobMappings {
		if m.From == "" || m.To == "" {
			return fmt.Errorf("job-mappings[%d]: from and to are required", i)
		}
	}

	for i, j := range rc.AllowedJobs {
		if j == "" {
			return fmt.Errorf("allowed-jobs[%d]: empty job name", i)
		}
	}

	known := make(map[string]bool)
	for _, f := range rules.DefaultFields() {
		known[f] = true
	}

	for _, f := range rc.RuleFields {
		if !known[f] {
			return fmt.Errorf("rule-fields: unknown field %q", f)
		}
	}

	return nil
}
