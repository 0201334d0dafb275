package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

// EmitOptions configures an Emitter.
type EmitOptions struct {
	// DryRun skips writing.
	DryRun bool
	// Diff prints a unified diff against the file on disk.
	Diff bool
	// Color enables ANSI colors in diffs.
	Color bool
}

// EmitResult describes one emitted file.
type EmitResult struct {
	Path    string
	Changed bool
	Written bool
}

// Emitter writes command output files honouring dry-run and diff mode.
type Emitter struct {
	opts   EmitOptions
	out    io.Writer
	logger *slog.Logger
}

// NewEmitter creates an Emitter printing diffs to out.
func NewEmitter(opts EmitOptions, out io.Writer, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Emitter{opts: opts, out: out, logger: logger}
}

// DryRun reports whether files are left untouched.
func (e *Emitter) DryRun() bool {
	return e.opts.DryRun
}

// Emit writes data to path. Unchanged content is not rewritten.
func (e *Emitter) Emit(path string, data []byte) (EmitResult, error) {
	res := EmitResult{Path: path}

	old, err := os.ReadFile(path) //nolint:gosec // path is a configured output location
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("reading existing %s: %w", path, err)
	}

	res.Changed = err != nil || !bytes.Equal(old, data)

	if e.opts.Diff && res.Changed {
		d, err := ComputeDiff(string(old), string(data), DefaultDiffOptions(path))
		if err != nil {
			return res, err
		}

		WriteDiff(e.out, d, e.opts.Color)
	}

	if e.opts.DryRun || !res.Changed {
		return res, nil
	}

	if err := NewFileWriter(path, WithLogger(e.logger)).Write(data); err != nil {
		return res, err
	}

	res.Written = true

	return res, nil
}
