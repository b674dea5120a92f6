// Package deflate compresses and inflates entry payloads.
//
// Payloads are stored as zlib-framed deflate streams. Inflation always
// checks the result against the size declared in the record header.
package deflate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/databin/internal/bintype"
)

// Re-export sentinel errors.
var (
	ErrSizeMismatch  = bintype.ErrSizeMismatch
	ErrDecompression = bintype.ErrDecompression
)

// DefaultLevel is the compression level used when none is configured.
const DefaultLevel = zlib.DefaultCompression

// Codec compresses and inflates payloads, reusing zlib state between calls.
// A Codec is safe for concurrent use.
type Codec struct {
	level   int
	writers sync.Pool
	readers sync.Pool
}

// NewCodec creates a Codec that compresses at the given zlib level.
// Invalid levels fall back to DefaultLevel.
func NewCodec(level int) *Codec {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		level = DefaultLevel
	}
	return &Codec{level: level}
}

var defaultCodec = NewCodec(DefaultLevel)

// Compress deflates data with the default codec.
func Compress(data []byte) ([]byte, error) {
	return defaultCodec.Compress(data)
}

// Decompress inflates data with the default codec.
func Decompress(data []byte, expectedSize int) ([]byte, error) {
	return defaultCodec.Decompress(data, expectedSize)
}

// Level returns the configured compression level.
func (c *Codec) Level() int {
	return c.level
}

// Compress returns the zlib stream for data. Empty input yields a valid
// stream that inflates to zero bytes.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(data)/2 + 64)

	zw, release, err := c.writer(&out)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress inflates data and verifies it produces exactly expectedSize bytes.
func (c *Codec) Decompress(data []byte, expectedSize int) ([]byte, error) {
	if expectedSize < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, expectedSize)
	}

	zr, release, err := c.reader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer release()

	content := make([]byte, expectedSize)
	n, err := io.ReadFull(zr, content)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, expectedSize)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	if err := ensureNoExtra(zr); err != nil {
		return nil, err
	}
	return content, nil
}

// ensureNoExtra fails when the stream holds data past the declared size.
func ensureNoExtra(r io.Reader) error {
	var probe [1]byte
	n, err := r.Read(probe[:])
	if n > 0 {
		return fmt.Errorf("%w: stream longer than declared size", ErrSizeMismatch)
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDecompression, err)
}

func (c *Codec) writer(w io.Writer) (*zlib.Writer, func(), error) {
	if v, ok := c.writers.Get().(*zlib.Writer); ok {
		v.Reset(w)
		return v, func() { c.writers.Put(v) }, nil
	}
	zw, err := zlib.NewWriterLevel(w, c.level)
	if err != nil {
		return nil, nil, fmt.Errorf("create zlib writer: %w", err)
	}
	return zw, func() { c.writers.Put(zw) }, nil
}

// zlibReader is the reset-capable reader returned by zlib.NewReader.
type zlibReader interface {
	io.ReadCloser
	zlib.Resetter
}

func (c *Codec) reader(r io.Reader) (io.Reader, func(), error) {
	if v, ok := c.readers.Get().(zlibReader); ok {
		if err := v.Reset(r, nil); err == nil {
			return v, func() {
				_ = v.Close()
				c.readers.Put(v)
			}, nil
		}
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	rr, ok := zr.(zlibReader)
	if !ok {
		return zr, func() { _ = zr.Close() }, nil
	}
	return rr, func() {
		_ = rr.Close()
		c.readers.Put(rr)
	}, nil
}
