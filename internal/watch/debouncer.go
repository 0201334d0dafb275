package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Batch describes the events coalesced into one debounced callback.
type Batch struct {
	// Last is the path of the most recent event.
	Last string
	// Events counts the events seen since the previous callback.
	Events int
}

// Debouncer coalesces rapid events into a single callback invocation.
type Debouncer struct {
	interval time.Duration
	callback func(Batch)

	mu      sync.Mutex
	timer   *time.Timer
	pending Batch
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback.
func NewDebouncer(interval time.Duration, callback func(Batch)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Trigger records an event for path and restarts the quiet period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending.Last = path
	d.pending.Events++

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debounced run panicked", slog.Any("error", r))
		}
	}()

	d.mu.Lock()
	b := d.pending
	d.pending = Batch{}
	d.mu.Unlock()

	if b.Events == 0 {
		return
	}

	d.callback(b)
}

// Stop cancels any pending callback and drops the recorded events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.pending = Batch{}
}
