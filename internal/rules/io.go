package rules

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// ErrNoGroups is returned when a document has no groups key.
var ErrNoGroups = errors.New("no groups found")

// Parse decodes a rules file. A file without a groups key is reported with
// ErrNoGroups; an explicitly empty group list is valid.
func Parse(data []byte) (Document, error) {
	var raw struct {
		Groups *[]Group `yaml:"groups"`
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("parsing rules: %w", err)
	}

	if raw.Groups == nil {
		return Document{}, ErrNoGroups
	}

	return Document{Groups: *raw.Groups}, nil
}

// MarshalSorted renders doc as YAML with every mapping's keys in
// alphabetical order.
func MarshalSorted(doc Document) ([]byte, error) {
	out, err := sigsyaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing rules: %w", err)
	}

	return out, nil
}

// MarshalOrdered renders doc as YAML keeping the field order of Rule and
// Group (name, interval, rules; alert, record, expr, ...).
func MarshalOrdered(doc Document) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("serializing rules: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serializing rules: %w", err)
	}

	return buf.Bytes(), nil
}
