package binio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// PathPad fills the unused tail of fixed-width path fields in record headers.
const PathPad = 0xCD

// Writer writes little-endian values to an io.WriteSeeker while tracking
// its logical cursor.
type Writer struct {
	w   io.WriteSeeker
	pos int64
	buf [4]byte
}

// NewWriter returns a Writer that starts at the sink's current position.
func NewWriter(w io.WriteSeeker) (*Writer, error) {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, pos: pos}, nil
}

// Pos returns the logical cursor offset.
func (w *Writer) Pos() int64 {
	return w.pos
}

// Seek moves the cursor to an absolute offset.
func (w *Writer) Seek(off int64) error {
	if _, err := w.w.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", off, err)
	}
	w.pos = off
	return nil
}

// Jump runs fn with the cursor at off and restores the previous cursor afterwards.
// A failure to restore is reported only when fn itself succeeded.
func (w *Writer) Jump(off int64, fn func() error) (err error) {
	saved := w.pos
	defer func() {
		if restoreErr := w.Seek(saved); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()
	if err := w.Seek(off); err != nil {
		return err
	}
	return fn()
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}

// Bytes writes p in full.
func (w *Writer) Bytes(p []byte) error {
	_, err := w.Write(p)
	return err
}

// Uint32 writes a little-endian uint32.
func (w *Writer) Uint32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	return w.Bytes(w.buf[:4])
}

// Float32 writes a little-endian IEEE-754 float.
func (w *Writer) Float32(v float32) error {
	return w.Uint32(math.Float32bits(v))
}

// Placeholder writes a zero uint32 and returns its offset for a later Patch.
func (w *Writer) Placeholder() (int64, error) {
	at := w.pos
	return at, w.Uint32(0)
}

// Patch overwrites the uint32 at off and restores the cursor.
func (w *Writer) Patch(off int64, v uint32) error {
	return w.Jump(off, func() error {
		return w.Uint32(v)
	})
}

// FixedString writes s, a NUL terminator, and pad bytes up to width.
// It returns errTooLong when s and its terminator do not fit.
func (w *Writer) FixedString(s string, width int, pad byte, errTooLong error) error {
	if len(s)+1 > width {
		return fmt.Errorf("%w: %q exceeds %d bytes", errTooLong, s, width-1)
	}
	field := make([]byte, width)
	copy(field, s)
	for i := len(s) + 1; i < width; i++ {
		field[i] = pad
	}
	return w.Bytes(field)
}
