package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/strvals"

	"github.com/hupe1980/kpsport/internal/maputil"
)

// ValuesOptions holds the user-supplied value overrides.
type ValuesOptions struct {
	// ValueFiles is a list of YAML files to merge (last wins).
	ValueFiles []string

	// Values is a list of key=value pairs (dotted paths for nested values).
	Values []string

	// StringValues is a list of key=value pairs forced to string type.
	StringValues []string

	// FileValues is a list of key=filepath pairs where values come from files.
	FileValues []string
}

// Args returns the overrides as helm command-line flags. Value file paths
// are made absolute because helm runs inside the chart directory.
func (v ValuesOptions) Args() ([]string, error) {
	var args []string

	for _, f := range v.ValueFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving values file %q: %w", f, err)
		}

		args = append(args, "--values", abs)
	}

	for _, s := range v.Values {
		args = append(args, "--set", s)
	}

	for _, s := range v.StringValues {
		args = append(args, "--set-string", s)
	}

	for _, s := range v.FileValues {
		key, path, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set-file format %q: expected key=filepath", s)
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving --set-file %q: %w", path, err)
		}

		args = append(args, "--set-file", key+"="+abs)
	}

	return args, nil
}

// MergeValues merges chart defaults with the overrides following Helm
// precedence: chart defaults < value files < --set/--set-string/--set-file.
// The chart's own Values map is not modified.
func MergeValues(ch *chart.Chart, vopts ValuesOptions) (map[string]interface{}, error) {
	base := maputil.DeepCopyMap(ch.Values)
	if base == nil {
		base = make(map[string]interface{})
	}

	for _, f := range vopts.ValueFiles {
		data, err := os.ReadFile(f) //nolint:gosec // f is a user-provided values file path
		if err != nil {
			return nil, fmt.Errorf("reading values file %q: %w", f, err)
		}

		fileVals, err := chartutil.ReadValues(data)
		if err != nil {
			return nil, fmt.Errorf("parsing values file %q: %w", f, err)
		}

		base = chartutil.CoalesceTables(fileVals, base)
	}

	for _, v := range vopts.Values {
		if err := strvals.ParseInto(v, base); err != nil {
			return nil, fmt.Errorf("parsing --set %q: %w", v, err)
		}
	}

	for _, v := range vopts.StringValues {
		if err := strvals.ParseIntoString(v, base); err != nil {
			return nil, fmt.Errorf("parsing --set-string %q: %w", v, err)
		}
	}

	for _, v := range vopts.FileValues {
		key, path, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set-file format %q: expected key=filepath", v)
		}

		data, err := os.ReadFile(path) //nolint:gosec // user-provided --set-file path
		if err != nil {
			return nil, fmt.Errorf("reading --set-file %q: %w", path, err)
		}

		if err := strvals.ParseIntoString(key+"="+string(data), base); err != nil {
			return nil, fmt.Errorf("applying --set-file %q: %w", v, err)
		}
	}

	return base, nil
}
