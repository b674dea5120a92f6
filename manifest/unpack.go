package manifest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/databin"
	"github.com/meigma/databin/internal/extract"
	"github.com/meigma/databin/internal/namehash"
)

// Option configures Extract and Pack.
type Option func(*settings)

type settings struct {
	workers     int
	overwrite   bool
	strict      bool
	logger      *slog.Logger
	archiveOpts []databin.Option
}

// WithWorkers sets the number of concurrent file writers used by Extract.
// Values < 0 write serially. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.workers = n
	}
}

// WithOverwrite lets Extract replace existing files.
func WithOverwrite(overwrite bool) Option {
	return func(s *settings) {
		s.overwrite = overwrite
	}
}

// WithStrict makes Pack fail when a file no longer matches its digest.
// By default changed files are packed and reported.
func WithStrict(strict bool) Option {
	return func(s *settings) {
		s.strict = strict
	}
}

// WithLogger sets the logger for progress diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithArchiveOptions sets the options used to create the packed archive.
func WithArchiveOptions(opts ...databin.Option) Option {
	return func(s *settings) {
		s.archiveOpts = append(s.archiveOpts, opts...)
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// ExtractResult reports what Extract wrote.
type ExtractResult struct {
	Manifest *Manifest
	Stats    extract.Stats
}

// Extract writes every entry of a beneath dir, followed by the file list
// and the manifest. dir is created if needed. The manifest is written
// last, so a directory with a manifest holds a complete extraction.
func Extract(ctx context.Context, a *databin.Archive, dir string, opts ...Option) (*ExtractResult, error) {
	s := newSettings(opts)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	m, payloads, err := build(a)
	if err != nil {
		return nil, err
	}
	items := make([]extract.Item, len(m.Entries))
	for i := range m.Entries {
		items[i] = extract.Item{Path: m.Entries[i].File, Data: payloads[i]}
	}

	runner := extract.NewRunner(extract.WithWorkers(s.workers), extract.WithLogger(s.logger))
	stats, err := runner.Run(ctx, items, extract.NewFileSink(dir, extract.WithOverwrite(s.overwrite)))
	if err != nil {
		return nil, err
	}

	var list bytes.Buffer
	if err := a.WriteFileList(&list); err != nil {
		return nil, err
	}
	encoded, err := Encode(m)
	if err != nil {
		return nil, err
	}
	meta := []extract.Item{
		{Path: FileListName, Data: list.Bytes()},
		{Path: FileName, Data: encoded},
	}
	serial := extract.NewRunner(extract.WithWorkers(-1), extract.WithLogger(s.logger))
	if _, err := serial.Run(ctx, meta, extract.NewFileSink(dir, extract.WithOverwrite(true))); err != nil {
		return nil, err
	}

	s.logger.Info("archive extracted",
		"dir", dir, "files", stats.Files, "skipped", stats.Skipped, "bytes", stats.Bytes)
	return &ExtractResult{Manifest: m, Stats: stats}, nil
}

// PackResult reports what Pack built.
type PackResult struct {
	Archive  *databin.Archive
	Manifest *Manifest

	// Changed lists the ids of entries whose file differs from the
	// manifest digest.
	Changed []int
}

// Pack rebuilds an archive from a directory written by Extract.
//
// Entries are added in manifest order with their recorded hash,
// compression flag, and path, and the resolution phases run once all
// entries are present.
func Pack(dir string, opts ...Option) (*PackResult, error) {
	s := newSettings(opts)

	m, err := ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	res := &PackResult{Archive: databin.New(s.archiveOpts...), Manifest: m}
	for i := range m.Entries {
		me := &m.Entries[i]
		if me.ID != i {
			return nil, fmt.Errorf("%w: entry %d has id %d", ErrEntryOrder, i, me.ID)
		}
		data, err := root.ReadFile(filepath.FromSlash(me.File))
		if err != nil {
			return nil, fmt.Errorf("read entry %d: %w", me.ID, err)
		}
		if Sum(data) != me.Digest {
			if s.strict {
				return nil, fmt.Errorf("%w: entry %d (%s)", ErrDigestMismatch, me.ID, me.File)
			}
			res.Changed = append(res.Changed, me.ID)
			s.logger.Info("entry changed since extraction", "entry", me.ID, "file", me.File)
		}
		if err := addEntry(res.Archive, me, data); err != nil {
			return nil, fmt.Errorf("pack entry %d: %w", me.ID, err)
		}
	}

	res.Archive.SetGlobalPaths(m.GlobalPaths)
	res.Archive.Resolve()
	s.logger.Info("archive packed", "dir", dir, "entries", len(m.Entries), "changed", len(res.Changed))
	return res, nil
}

func addEntry(a *databin.Archive, me *Entry, data []byte) error {
	if me.Path == "" {
		_, err := a.AddHashed(me.Hash, data, me.Compressed)
		return err
	}
	if got := namehash.HashPath(me.Path); got != me.Hash {
		return fmt.Errorf("%w: %q hashes to %#08x, want %#08x", ErrHashMismatch, me.Path, got, me.Hash)
	}
	if me.Collision {
		_, err := a.AddNamed(me.Path, data, me.Compressed)
		return err
	}
	_, err := a.Add(me.Path, data, me.Compressed)
	return err
}
