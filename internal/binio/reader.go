package binio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Source provides random access to a byte region of known size.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Reader reads little-endian values from a Source at a movable cursor.
type Reader struct {
	src Source
	pos int64
	buf [4]byte
}

// NewReader returns a Reader positioned at offset 0 of src.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// NewBytesReader returns a Reader over an in-memory slice.
func NewBytesReader(data []byte) *Reader {
	return NewReader(bytes.NewReader(data))
}

// Pos returns the current cursor offset.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Size returns the total size of the underlying region.
func (r *Reader) Size() int64 {
	return r.src.Size()
}

// Remaining returns the number of bytes between the cursor and the end of the region.
func (r *Reader) Remaining() int64 {
	if rem := r.src.Size() - r.pos; rem > 0 {
		return rem
	}
	return 0
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(off int64) error {
	if off < 0 || off > r.src.Size() {
		return fmt.Errorf("seek to %d outside region of %d bytes: %w", off, r.src.Size(), io.ErrUnexpectedEOF)
	}
	r.pos = off
	return nil
}

// Jump runs fn with the cursor at off and restores the previous cursor afterwards.
func (r *Reader) Jump(off int64, fn func() error) error {
	saved := r.pos
	defer func() { r.pos = saved }()
	if err := r.Seek(off); err != nil {
		return err
	}
	return fn()
}

// ReadFull fills p from the cursor and advances it.
func (r *Reader) ReadFull(p []byte) error {
	if int64(len(p)) > r.Remaining() {
		return fmt.Errorf("read %d bytes at offset %d: %w", len(p), r.pos, io.ErrUnexpectedEOF)
	}
	n, err := r.src.ReadAt(p, r.pos)
	if n == len(p) {
		// io.ReaderAt may report io.EOF alongside a complete read at the end of the region.
		err = nil
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read %d bytes at offset %d: %w", len(p), r.pos, err)
	}
	r.pos += int64(n)
	return nil
}

// Bytes reads n bytes into a new slice.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d at offset %d", n, r.pos)
	}
	p := make([]byte, n)
	if err := r.ReadFull(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.ReadFull(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

// Float32 reads a little-endian IEEE-754 float.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// FixedString reads a width-byte field and returns the text before the first NUL.
// Bytes after the terminator are ignored regardless of their value.
func (r *Reader) FixedString(width int) (string, error) {
	field, err := r.Bytes(width)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field), nil
}

// Rest reads every byte between the cursor and the end of the region.
func (r *Reader) Rest() ([]byte, error) {
	return r.Bytes(int(r.Remaining()))
}
