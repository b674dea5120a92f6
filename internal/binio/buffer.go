package binio

import (
	"errors"
	"io"
)

// Buffer is a growable in-memory io.WriteSeeker.
// Seeking past the end and writing zero-fills the gap.
type Buffer struct {
	data []byte
	pos  int64
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.data))))
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

// Seek implements io.Seeker.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("binio: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("binio: negative position")
	}
	b.pos = abs
	return abs, nil
}

// Bytes returns the written contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.data)
}
