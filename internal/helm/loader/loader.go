// Package loader loads the kube-prometheus-stack chart for in-process
// rendering from a local directory, a packaged archive or an OCI registry.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"helm.sh/helm/v3/pkg/chart"
	helmloader "helm.sh/helm/v3/pkg/chart/loader"
)

// SourceType identifies the origin of a chart reference.
type SourceType int

const (
	// SourceUnknown indicates the source type could not be determined.
	SourceUnknown SourceType = iota
	// SourceDirectory is a local directory containing Chart.yaml.
	SourceDirectory
	// SourceArchive is a .tgz or .tar.gz packaged chart.
	SourceArchive
	// SourceOCI is an oci:// registry reference.
	SourceOCI
)

// String returns a human-readable name for the source type.
func (s SourceType) String() string {
	switch s {
	case SourceDirectory:
		return "directory"
	case SourceArchive:
		return "archive"
	case SourceOCI:
		return "oci"
	default:
		return "unknown"
	}
}

// DefaultMaxArchiveSize is 100 MB.
const DefaultMaxArchiveSize int64 = 100 * 1024 * 1024

// Options configures chart loading.
type Options struct {
	// MaxArchiveSize limits archives and OCI pulls. Zero means
	// DefaultMaxArchiveSize.
	MaxArchiveSize int64
	// Username and Password authenticate against an OCI registry.
	Username string
	Password string
	// PlainHTTP talks to the OCI registry without TLS.
	PlainHTTP bool
}

func (o Options) maxArchiveSize() int64 {
	if o.MaxArchiveSize > 0 {
		return o.MaxArchiveSize
	}

	return DefaultMaxArchiveSize
}

// Loader loads a Helm chart from a reference.
type Loader interface {
	Load(ctx context.Context, ref string) (*chart.Chart, error)
}

// compile-time interface conformance check.
var _ Loader = (*ChartLoader)(nil)

// ChartLoader detects the source type of a reference and loads it.
type ChartLoader struct {
	opts Options
	pull func(ctx context.Context, ref string, opts Options) ([]byte, error)
}

// New creates a ChartLoader.
func New(opts Options) *ChartLoader {
	return &ChartLoader{opts: opts, pull: pullOCI}
}

// Detect classifies a chart reference.
func Detect(ref string) (SourceType, error) {
	if ref == "" {
		return SourceUnknown, fmt.Errorf("empty chart reference")
	}

	if strings.HasPrefix(ref, "oci://") {
		return SourceOCI, nil
	}

	if strings.HasSuffix(ref, ".tgz") || strings.HasSuffix(ref, ".tar.gz") {
		return SourceArchive, nil
	}

	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return SourceDirectory, nil
	}

	return SourceUnknown, fmt.Errorf("cannot determine chart source type for %q", ref)
}

// ErrLibraryChart is returned for charts of type library, which render
// nothing.
var ErrLibraryChart = errors.New("library charts cannot be rendered")

// Load resolves ref and returns the in-memory chart.
func (l *ChartLoader) Load(ctx context.Context, ref string) (*chart.Chart, error) {
	ch, err := l.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	if ch.Metadata != nil && ch.Metadata.Type == "library" {
		return nil, fmt.Errorf("chart %q: %w", ch.Name(), ErrLibraryChart)
	}

	return ch, nil
}

func (l *ChartLoader) load(ctx context.Context, ref string) (*chart.Chart, error) {
	st, err := Detect(ref)
	if err != nil {
		return nil, err
	}

	switch st {
	case SourceDirectory:
		return loadDirectory(ref)
	case SourceArchive:
		return loadArchiveFile(ref, l.opts.maxArchiveSize())
	case SourceOCI:
		data, err := l.pull(ctx, ref, l.opts)
		if err != nil {
			return nil, err
		}

		return loadArchive(bytes.NewReader(data), l.opts.maxArchiveSize())
	default:
		return nil, fmt.Errorf("unsupported chart source type: %s", st)
	}
}

func loadDirectory(dir string) (*chart.Chart, error) {
	if _, err := os.Stat(filepath.Join(dir, "Chart.yaml")); err != nil {
		return nil, fmt.Errorf("chart directory %q has no Chart.yaml: %w", dir, err)
	}

	ch, err := helmloader.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading chart from %q: %w", dir, err)
	}

	return ch, nil
}

func loadArchiveFile(path string, maxSize int64) (*chart.Chart, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("archive %q: %w", path, err)
	}

	if info.Size() > maxSize {
		return nil, fmt.Errorf("archive %q is %d bytes, exceeding maximum %d bytes", path, info.Size(), maxSize)
	}

	f, err := os.Open(path) //nolint:gosec // path is the user-provided chart reference
	if err != nil {
		return nil, fmt.Errorf("opening archive %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return loadArchive(f, maxSize)
}

func loadArchive(r io.Reader, maxSize int64) (*chart.Chart, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("archive exceeds maximum size of %d bytes", maxSize)
	}

	ch, err := helmloader.LoadArchive(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loading chart archive: %w", err)
	}

	return ch, nil
}
