// Package extract writes archive entries to the filesystem concurrently.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Item is one file to write. Path is slash-separated and relative to the
// sink's destination.
type Item struct {
	Path string
	Data []byte
}

// Committer receives one file's bytes and finalizes or abandons it.
type Committer interface {
	io.Writer
	Commit() error
	Discard() error
}

// Sink decides which items to write and where.
type Sink interface {
	ShouldProcess(item *Item) bool
	Writer(item *Item) (Committer, error)
}

// Stats summarizes a Run.
type Stats struct {
	Files   int
	Bytes   uint64
	Skipped int
}

// Runner writes items to a sink with a bounded number of workers.
type Runner struct {
	workers int // 0 = GOMAXPROCS, <0 = serial, >0 = fixed count
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of concurrent writers.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithLogger sets the logger for per-file diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Run writes every item the sink accepts. It stops at the first error, or
// when ctx is canceled, and returns after in-flight writes finish. Files
// already committed are left in place.
func (r *Runner) Run(ctx context.Context, items []Item, sink Sink) (Stats, error) {
	var files, skipped atomic.Int64
	var written atomic.Uint64

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workerCount(len(items)))

	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			break
		}
		if !sink.ShouldProcess(item) {
			skipped.Add(1)
			r.log().Debug("skipping existing file", "path", item.Path)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeItem(sink, item); err != nil {
				return fmt.Errorf("extract %s: %w", item.Path, err)
			}
			files.Add(1)
			written.Add(uint64(len(item.Data)))
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = parent.Err()
	}
	stats := Stats{Files: int(files.Load()), Bytes: written.Load(), Skipped: int(skipped.Load())}
	r.log().Debug("extract finished", "files", stats.Files, "bytes", stats.Bytes, "skipped", stats.Skipped)
	return stats, err
}

func writeItem(sink Sink, item *Item) error {
	w, err := sink.Writer(item)
	if err != nil {
		return err
	}
	if _, err := w.Write(item.Data); err != nil {
		_ = w.Discard() //nolint:errcheck // the write error is reported
		return err
	}
	return w.Commit()
}

func (r *Runner) workerCount(items int) int {
	workers := r.workers
	if workers < 0 {
		return 1
	}
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > items {
		workers = items
	}
	return max(workers, 1)
}
