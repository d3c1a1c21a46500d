package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cbout22/squaresync/internal/config"
	"github.com/cbout22/squaresync/internal/manifest"
	"github.com/cbout22/squaresync/internal/progress"
	"github.com/cbout22/squaresync/internal/remote"
	"github.com/cbout22/squaresync/internal/syncer"
	"github.com/cbout22/squaresync/internal/tree"
)

// ChunkSize is the read size used when streaming a file to disk.
const ChunkSize = 32 * 1024

// FilePermissions is used for every downloaded file.
const FilePermissions = 0644

// Options configures the downloader.
type Options struct {
	// Workers is the maximum number of downloads in flight.
	// Default: config.DefaultWorkers
	Workers int

	// CourseID is passed to detail lookups.
	CourseID string

	// Progress receives per-file progress. Default: progress.Discard
	Progress progress.Sink

	// OnComplete is called once per handled file, including skipped ones.
	// Calls are serialized.
	OnComplete func(Result)
}

// Outcome is what happened to one file.
type Outcome int

const (
	Skipped Outcome = iota
	Replaced
	Created
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Replaced:
		return "replaced"
	case Created:
		return "created"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the outcome of one file.
type Result struct {
	Task tree.FileTask
	// Path is the local file path.
	Path    string
	Outcome Outcome
	// Bytes written; zero for skipped files.
	Bytes int64
	// Checksum is the xxhash64 of the written content, empty unless the file
	// was downloaded.
	Checksum string
	Err      error
}

// Report summarises a Run.
type Report struct {
	Skipped  int
	Replaced int
	Created  int
	Failed   int
	// Pending counts files that were never attempted because an earlier
	// file failed or the context was cancelled.
	Pending int
	// Dropped lists pending files whose stale local copy was already removed
	// when they were dispatched. They no longer exist on disk.
	Dropped []tree.FileTask
	Bytes   int64
	Results []Result
}

func (r *Report) add(res Result) {
	switch res.Outcome {
	case Skipped:
		r.Skipped++
	case Replaced:
		r.Replaced++
	case Created:
		r.Created++
	case Failed:
		r.Failed++
	}
	r.Bytes += res.Bytes
	r.Results = append(r.Results, res)
}

// TaskError reports the file that stopped a Run.
type TaskError struct {
	Path string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("downloading %s: %v", e.Path, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Downloader streams attachment files from a remote source to disk.
type Downloader struct {
	src  remote.Fetcher
	opts Options
}

// New creates a Downloader.
func New(src remote.Fetcher, opts Options) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultWorkers
	}
	if opts.Progress == nil {
		opts.Progress = progress.Discard
	}
	return &Downloader{src: src, opts: opts}
}

// Run brings every task under root up to date. Tasks are dispatched in order
// with at most Workers downloads running at once.
func (d *Downloader) Run(ctx context.Context, root string, tasks []tree.FileTask) (Report, error) {
	var (
		mu       sync.Mutex
		report   Report
		firstErr error
	)

	record := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		report.add(res)
		if res.Err != nil && firstErr == nil {
			firstErr = &TaskError{Path: res.Task.RelPath(), Err: res.Err}
		}
		if d.opts.OnComplete != nil {
			d.opts.OnComplete(res)
		}
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)

	for _, task := range tasks {
		if failed() || ctx.Err() != nil {
			break
		}

		path := filepath.Join(root, task.RelPath())
		action, err := syncer.Decide(task.Entry, path)
		if err != nil {
			record(Result{Task: task, Path: path, Outcome: Failed, Err: err})
			break
		}
		if action == syncer.Skip {
			record(Result{Task: task, Path: path, Outcome: Skipped})
			continue
		}

		outcome := Created
		if action == syncer.Replace {
			outcome = Replaced
		}

		// Blocks until a slot frees up.
		g.Go(func() error {
			// A failure may have been recorded while this task waited for a slot.
			if failed() || ctx.Err() != nil {
				if outcome == Replaced {
					mu.Lock()
					report.Dropped = append(report.Dropped, task)
					mu.Unlock()
				}
				return nil
			}
			n, sum, err := d.fetch(ctx, task, path)
			if err != nil {
				record(Result{Task: task, Path: path, Outcome: Failed, Bytes: n, Err: err})
				return nil
			}
			record(Result{Task: task, Path: path, Outcome: outcome, Bytes: n, Checksum: sum})
			return nil
		})
	}
	g.Wait()

	report.Pending = len(tasks) - len(report.Results)
	if firstErr != nil {
		return report, firstErr
	}
	if err := ctx.Err(); err != nil && report.Pending > 0 {
		return report, err
	}
	return report, nil
}

// fetch downloads one file to path and returns the bytes written and their
// checksum. A partially written file is removed.
func (d *Downloader) fetch(ctx context.Context, task tree.FileTask, path string) (int64, string, error) {
	url := task.Entry.Path
	if !task.Entry.Downloadable() {
		resolved, err := d.src.Detail(ctx, d.opts.CourseID, task.Entry.ID)
		if err != nil {
			return 0, "", fmt.Errorf("resolving download URL: %w", err)
		}
		url = resolved
	}

	stream, err := d.src.Open(ctx, url)
	if err != nil {
		return 0, "", err
	}
	defer stream.Body.Close()

	total := stream.ContentLength
	if total < 0 {
		total = task.Entry.DeclaredSize()
	}
	bar := d.opts.Progress.Track(task.Name, total)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FilePermissions)
	if err != nil {
		err = fmt.Errorf("creating file: %w", err)
		bar.Done(err)
		return 0, "", err
	}

	h := xxhash.New()
	n, err := copyChunks(io.MultiWriter(f, h), stream.Body, bar)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing file: %w", cerr)
	}
	bar.Done(err)

	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("removing partial file: %w", rmErr))
		}
		return n, "", err
	}
	return n, manifest.FormatChecksum(h.Sum64()), nil
}

// copyChunks copies src to dst in ChunkSize reads, reporting every chunk to bar.
func copyChunks(dst io.Writer, src io.Reader, bar progress.Bar) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			bar.Add(int64(nw))
			if werr != nil {
				return written, fmt.Errorf("writing file: %w", werr)
			}
			if nw != nr {
				return written, fmt.Errorf("writing file: %w", io.ErrShortWrite)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &remote.Error{Op: "download", Kind: remote.Network, Err: rerr}
		}
	}
}
