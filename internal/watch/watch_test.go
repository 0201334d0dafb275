package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var last atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(b Batch) {
		callCount.Add(1)
		last.Store(b)
	})
	defer d.Stop()

	d.Trigger("a.yaml")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, Batch{Last: "a.yaml", Events: 1}, last.Load())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32
	var last atomic.Value

	d := NewDebouncer(100*time.Millisecond, func(b Batch) {
		callCount.Add(1)
		last.Store(b)
	})
	defer d.Stop()

	for range 10 {
		d.Trigger("file.yaml")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, Batch{Last: "file.yaml", Events: 10}, last.Load())
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var last atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(b Batch) {
		last.Store(b.Last)
	})
	defer d.Stop()

	d.Trigger("first.yaml")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("second.yaml")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("third.yaml")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "third.yaml", last.Load())
}

func TestDebouncer_CountResetsBetweenBatches(t *testing.T) {
	batches := make(chan Batch, 2)

	d := NewDebouncer(30*time.Millisecond, func(b Batch) {
		batches <- b
	})
	defer d.Stop()

	d.Trigger("a.yaml")
	d.Trigger("b.yaml")
	assert.Equal(t, Batch{Last: "b.yaml", Events: 2}, <-batches)

	d.Trigger("c.yaml")
	assert.Equal(t, Batch{Last: "c.yaml", Events: 1}, <-batches)
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(_ Batch) {
		callCount.Add(1)
	})

	d.Trigger("a.yaml")
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "values.yaml", describe(Batch{Last: "/c/values.yaml", Events: 1}))
	assert.Equal(t, "etcd.yaml (+2 events)", describe(Batch{Last: "/c/templates/etcd.yaml", Events: 3}))
}

// ---------------------------------------------------------------------------
// isRelevant
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"yaml write", "values.yaml", fsnotify.Write, true},
		{"tpl write", "deployment.tpl", fsnotify.Write, true},
		{"create event", "new.yaml", fsnotify.Create, true},
		{"remove event", "old.yaml", fsnotify.Remove, true},
		{"rename event", "renamed.yaml", fsnotify.Rename, true},
		{"hidden file", ".hidden", fsnotify.Write, false},
		{"swap file", "file.swp", fsnotify.Write, false},
		{"backup tilde", "file~", fsnotify.Write, false},
		{"emacs hash", "#file#", fsnotify.Write, false},
		{"zero op", "file.yaml", 0, false},
		{"chmod only", "file.yaml", fsnotify.Chmod, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: tt.path, Op: tt.op}
			assert.Equal(t, tt.want, isRelevant(event))
		})
	}
}

// ---------------------------------------------------------------------------
// addRecursive
// ---------------------------------------------------------------------------

func TestAddRecursive_SkipsHiddenDirs(t *testing.T) {
	dir := t.TempDir()

	// Create directory structure with visible and hidden dirs.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "charts", "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: test"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dashboards-json"), 0o755))

	// Create a real fsnotify watcher and call addRecursive.
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, dir, []string{filepath.Join(dir, "dashboards-json")}))

	// Verify watched directories: root, templates, charts, charts/sub but not .git or .hidden.
	watchList := watcher.WatchList()

	watched := make(map[string]bool)
	for _, p := range watchList {
		watched[p] = true
	}

	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "templates")], "templates should be watched")
	assert.True(t, watched[filepath.Join(dir, "charts")], "charts should be watched")
	assert.True(t, watched[filepath.Join(dir, "charts", "sub")], "charts/sub should be watched")
	assert.False(t, watched[filepath.Join(dir, ".git")], ".git should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".git", "objects")], ".git/objects should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".hidden")], ".hidden should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, "dashboards-json")], "ignored output dir should NOT be watched")
}

func TestAddRecursive_NonExistentDir(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	err = addRecursive(watcher, "/nonexistent/dir/12345", nil)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Run (integration)
// ---------------------------------------------------------------------------

func TestRun_GracefulShutdown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: test"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.ChartDir = dir
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			runCount.Add(1)
			return &RunResult{Processed: 1}, nil
		})
	}()

	// Let initial run complete.
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, runCount.Load(), int32(1))

	// Cancel → should shut down gracefully.
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func TestRun_FileChangeTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	chartFile := filepath.Join(dir, "Chart.yaml")
	valuesFile := filepath.Join(dir, "values.yaml")
	require.NoError(t, os.WriteFile(chartFile, []byte("name: test"), 0o644))
	require.NoError(t, os.WriteFile(valuesFile, []byte("replicas: 1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.ChartDir = dir
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			runCount.Add(1)
			return &RunResult{Processed: 1}, nil
		})
	}()

	// Wait for initial run.
	time.Sleep(200 * time.Millisecond)
	initialRuns := runCount.Load()

	// Modify a file → should trigger rebuild.
	require.NoError(t, os.WriteFile(valuesFile, []byte("replicas: 3"), 0o644))

	// Wait for debounce + processing.
	time.Sleep(300 * time.Millisecond)
	assert.Greater(t, runCount.Load(), initialRuns, "file change should trigger rebuild")

	cancel()
	<-done
}

// ---------------------------------------------------------------------------
// DefaultOptions
// ---------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 500*time.Millisecond, opts.Debounce)
	assert.Nil(t, opts.ValidateFn)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}

// ---------------------------------------------------------------------------
// Run error paths
// ---------------------------------------------------------------------------

func TestRun_InvalidChartDir(t *testing.T) {
	opts := DefaultOptions()
	opts.ChartDir = "/nonexistent/chart/dir/12345"
	opts.Out = io.Discard

	err := Run(context.Background(), opts, func(_ context.Context) (*RunResult, error) {
		return &RunResult{}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching chart directory")
}

func TestRun_RunFuncError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: test"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())

	opts := DefaultOptions()
	opts.ChartDir = dir
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	var callCount atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			callCount.Add(1)
			return nil, fmt.Errorf("pipeline error")
		})
	}()

	// Initial run will produce an error, but watcher continues.
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, callCount.Load(), int32(1))

	cancel()
	<-done
}

func TestRun_ExtraFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: test"), 0o644))

	extraFile := filepath.Join(t.TempDir(), "extra-values.yaml")
	require.NoError(t, os.WriteFile(extraFile, []byte("key: val"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())

	opts := DefaultOptions()
	opts.ChartDir = dir
	opts.ExtraFiles = []string{extraFile}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	var runCount atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			runCount.Add(1)
			return &RunResult{Processed: 1}, nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, runCount.Load(), int32(1))

	cancel()
	<-done
}

func TestIsIgnored(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "prometheus-rules-standard")

	assert.True(t, isIgnored(out, []string{out}))
	assert.True(t, isIgnored(filepath.Join(out, "rules.yml"), []string{out}))
	assert.False(t, isIgnored(out+"-old", []string{out}))
	assert.False(t, isIgnored(filepath.Join(dir, "values.yaml"), []string{out}))
	assert.False(t, isIgnored(out, nil))
}

func TestRun_ValidateAfterRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: test"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())

	var validated atomic.Value

	opts := DefaultOptions()
	opts.ChartDir = dir
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard
	opts.ValidateFn = func(_ context.Context, outputPath string) error {
		validated.Store(outputPath)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			return &RunResult{Processed: 1, OutputPath: "rules.yml"}, nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "rules.yml", validated.Load())

	cancel()
	<-done
}

func TestRun_IgnoredDirDoesNotTrigger(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "dashboards-json")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: test"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.ChartDir = dir
	opts.Ignore = []string{outDir}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			runCount.Add(1)
			return &RunResult{Written: 1}, nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int32(1), runCount.Load())

	require.NoError(t, os.WriteFile(filepath.Join(outDir, "etcd.json"), []byte("{}"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), runCount.Load())

	cancel()
	<-done
}

// ---------------------------------------------------------------------------
// doRun
// ---------------------------------------------------------------------------

func TestDoRun_StatusLine(t *testing.T) {
	var buf bytes.Buffer

	opts := Options{Out: &buf}

	doRun(context.Background(), opts, func(_ context.Context) (*RunResult, error) {
		return &RunResult{Processed: 3, Skipped: 1, Written: 2}, nil
	}, "values.yaml")

	assert.Contains(t, buf.String(), "values.yaml → OK (3 processed, 1 skipped, 2 written)")

	buf.Reset()
	opts.ValidateFn = func(_ context.Context, _ string) error {
		return fmt.Errorf("rule group %q: duplicate", "node")
	}

	doRun(context.Background(), opts, func(_ context.Context) (*RunResult, error) {
		return &RunResult{Processed: 1, OutputPath: "rules.yml"}, nil
	}, "(initial)")

	assert.Contains(t, buf.String(), "(initial) → OK")
	assert.Contains(t, buf.String(), `validate: FAILED: rule group "node": duplicate`)
}
