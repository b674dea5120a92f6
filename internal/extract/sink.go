package extract

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSink writes items beneath a destination directory.
//
// By default each file is written to a temporary file in its final
// directory and renamed into place on Commit, so a partially written file
// is never visible at the final path. All paths are resolved through an
// os.Root, so item paths cannot escape the destination.
type FileSink struct {
	destDir     string
	overwrite   bool
	directWrite bool
}

// SinkOption configures a FileSink.
type SinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) SinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithDirectWrites disables temp files and writes directly to the final path.
func WithDirectWrites(enabled bool) SinkOption {
	return func(s *FileSink) {
		s.directWrite = enabled
	}
}

// NewFileSink creates a FileSink that writes to destDir.
// destDir must exist.
func NewFileSink(destDir string, opts ...SinkOption) *FileSink {
	s := &FileSink{destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(item *Item) bool {
	if s.overwrite {
		return true
	}
	if !validPath(item.Path) {
		// Writer reports the invalid path.
		return true
	}
	_, err := os.Stat(filepath.Join(s.destDir, filepath.FromSlash(item.Path)))
	return errors.Is(err, fs.ErrNotExist)
}

// Writer returns a Committer for item.
func (s *FileSink) Writer(item *Item) (Committer, error) {
	if !validPath(item.Path) {
		return nil, &fs.PathError{Op: "extract", Path: item.Path, Err: fs.ErrInvalid}
	}
	destRel := filepath.FromSlash(item.Path)

	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	if err := root.MkdirAll(filepath.Dir(destRel), 0o750); err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create directory for %s: %w", item.Path, err)
	}

	if s.directWrite {
		f, err := root.OpenFile(destRel, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			_ = root.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("create file %s: %w", item.Path, err)
		}
		return &fileCommitter{file: f, root: root, tempRel: destRel, destRel: destRel}, nil
	}

	f, tempRel, err := createTempFile(root, filepath.Dir(destRel), ".databin-")
	if err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{file: f, root: root, tempRel: tempRel, destRel: destRel}, nil
}

// fileCommitter writes to tempRel and moves it to destRel on Commit.
// For direct writes the two paths are equal.
type fileCommitter struct {
	file    *os.File
	root    *os.Root
	tempRel string
	destRel string
}

func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.file.Write(p)
}

// Commit closes the file and renames it to its final path.
func (c *fileCommitter) Commit() error {
	defer c.root.Close() //nolint:errcheck // best-effort cleanup

	if err := c.file.Close(); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close %s: %w", c.tempRel, err)
	}
	if c.tempRel == c.destRel {
		return nil
	}
	if err := c.root.Rename(c.tempRel, c.destRel); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destRel, err)
	}
	return nil
}

// Discard closes and removes the file.
func (c *fileCommitter) Discard() error {
	defer c.root.Close() //nolint:errcheck // best-effort cleanup
	_ = c.file.Close()   //nolint:errcheck // we're cleaning up
	return c.root.Remove(c.tempRel)
}

// validPath reports whether p names a file beneath the destination.
func validPath(p string) bool {
	return fs.ValidPath(p) && p != "."
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		rel := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, rel, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
