package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives per-file progress from concurrent downloads.
type Sink interface {
	// Track registers a file of total bytes (-1 if unknown) and returns its bar.
	Track(name string, total int64) Bar
}

// Bar is the progress line of one file. Add and Done may be called from the
// goroutine that owns the file while other bars are updated concurrently.
type Bar interface {
	Add(n int64)
	Done(err error)
}

// Snapshot is a point-in-time view of one bar.
type Snapshot struct {
	Name        string
	Transferred int64
	Total       int64
	Finished    bool
	Err         error
}

// Options configures a Tracker.
type Options struct {
	// Output is where progress lines are drawn.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often the display is redrawn.
	// Default: 500ms
	UpdateInterval time.Duration

	// Width is the number of cells in each bar.
	// Default: 20
	Width int
}

// Tracker draws one line per in-flight file and prints a final line when a
// file finishes.
type Tracker struct {
	opts Options

	mu      sync.Mutex
	bars    []*bar // registration order
	active  int    // lines currently drawn below the cursor
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
}

var _ Sink = (*Tracker)(nil)

// NewTracker creates a Tracker. Call Start to begin drawing.
func NewTracker(opts Options) *Tracker {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	if opts.Width <= 0 {
		opts.Width = 20
	}

	return &Tracker{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins redrawing on every UpdateInterval.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.updateLoop()
}

// Stop draws the final state and stops the update loop.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	close(t.stopCh)
	if started {
		<-t.doneCh
		return
	}
	t.mu.Lock()
	t.redraw()
	t.mu.Unlock()
}

// Track registers a new file.
func (t *Tracker) Track(name string, total int64) Bar {
	b := &bar{tracker: t, name: name, total: total, start: time.Now()}
	t.mu.Lock()
	t.bars = append(t.bars, b)
	t.mu.Unlock()
	return b
}

// Snapshot returns the state of every bar ever registered, in order.
func (t *Tracker) Snapshot() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Snapshot, len(t.bars))
	for i, b := range t.bars {
		out[i] = b.snapshot()
	}
	return out
}

// Printf prints a permanent line above the live bars.
func (t *Tracker) Printf(format string, args ...any) {
	t.Fprintf(t.opts.Output, format, args...)
}

// Fprintf is Printf with the message written to w, typically os.Stderr.
// The live bars are cleared first and redrawn after, so the message is never
// interleaved with a bar line.
func (t *Tracker) Fprintf(w io.Writer, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active > 0 {
		fmt.Fprintf(t.opts.Output, "\033[%dA\r\033[J", t.active)
		t.active = 0
	}
	fmt.Fprintf(w, format, args...)

	t.redraw()
}

func (t *Tracker) updateLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.mu.Lock()
			t.redraw()
			t.mu.Unlock()
			return
		case <-ticker.C:
			t.mu.Lock()
			t.redraw()
			t.mu.Unlock()
		}
	}
}

// redraw moves the cursor back over the live lines, prints a permanent line
// for every bar that finished since the last redraw, then redraws the live
// bars. Callers hold t.mu.
func (t *Tracker) redraw() {
	var sb strings.Builder
	if t.active > 0 {
		fmt.Fprintf(&sb, "\033[%dA", t.active)
	}

	var live []*bar
	for _, b := range t.bars {
		switch {
		case b.printed:
		case b.finished.Load():
			sb.WriteString("\r\033[K")
			sb.WriteString(t.line(b))
			sb.WriteByte('\n')
			b.printed = true
		default:
			live = append(live, b)
		}
	}

	for _, b := range live {
		sb.WriteString("\r\033[K")
		sb.WriteString(t.line(b))
		sb.WriteByte('\n')
	}
	sb.WriteString("\033[J")
	t.active = len(live)

	io.WriteString(t.opts.Output, sb.String())
}

// line renders "[00:00:03] ########------------  1.00 MB/ 2.00 MB name".
func (t *Tracker) line(b *bar) string {
	s := b.snapshot()
	elapsed := time.Since(b.start).Truncate(time.Second)
	if b.finished.Load() {
		elapsed = b.elapsed
	}

	filled := 0
	if s.Total > 0 {
		filled = int(float64(s.Transferred) / float64(s.Total) * float64(t.opts.Width))
	}
	if filled > t.opts.Width {
		filled = t.opts.Width
	}
	if s.Finished && s.Err == nil {
		filled = t.opts.Width
	}

	total := "?"
	if s.Total >= 0 {
		total = formatBytes(s.Total)
	}

	status := s.Name
	if s.Err != nil {
		status = fmt.Sprintf("%s (failed: %v)", s.Name, s.Err)
	}

	return fmt.Sprintf("[%s] %s%s %10s/%-10s %s",
		formatClock(elapsed),
		strings.Repeat("#", filled),
		strings.Repeat("-", t.opts.Width-filled),
		formatBytes(s.Transferred),
		total,
		status,
	)
}

type bar struct {
	tracker     *Tracker
	name        string
	total       int64
	start       time.Time
	transferred atomic.Int64
	finished    atomic.Bool

	// guarded by tracker.mu
	err     error
	elapsed time.Duration
	printed bool
}

func (b *bar) Add(n int64) {
	b.transferred.Add(n)
}

func (b *bar) Done(err error) {
	b.tracker.mu.Lock()
	b.err = err
	b.elapsed = time.Since(b.start).Truncate(time.Second)
	b.finished.Store(true)
	b.tracker.mu.Unlock()
}

// snapshot is called with tracker.mu held.
func (b *bar) snapshot() Snapshot {
	return Snapshot{
		Name:        b.name,
		Transferred: b.transferred.Load(),
		Total:       b.total,
		Finished:    b.finished.Load(),
		Err:         b.err,
	}
}

// Discard is a Sink that drops all progress.
var Discard Sink = discard{}

type discard struct{}

func (discard) Track(string, int64) Bar { return discardBar{} }

type discardBar struct{}

func (discardBar) Add(int64)  {}
func (discardBar) Done(error) {}
