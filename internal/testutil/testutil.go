// Package testutil builds raw containers and typed payloads for tests.
//
// The builders write bytes directly rather than going through
// databin.Archive.Save, so tests can craft layouts Save would never produce.
package testutil

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/meigma/databin/internal/deflate"
	"github.com/meigma/databin/internal/namehash"
)

const (
	pathSize         = 0x108
	resourcePathSize = 260
	pathPad          = 0xCD
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data  []byte
	reads int
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads++
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Reads returns the number of ReadAt calls served.
func (m *MockByteSource) Reads() int {
	return m.reads
}

// Record describes one record for BuildArchive.
type Record struct {
	// Path makes the record a named record. Named records must follow all
	// hash-only records.
	Path string

	// Hash is stored for hash-only records. When zero and Name is set, the
	// hash of Name is used.
	Hash uint32

	// Name is hashed when Hash is zero; it is not stored.
	Name string

	Data     []byte
	Compress bool

	// Reserved is written to the reserved field; containers are only valid
	// when it is zero.
	Reserved uint32

	// SizeDelta is added to the declared size to simulate corrupt headers.
	SizeDelta int32
}

// BuildArchive serializes records and globalPaths into a container.
func BuildArchive(tb testing.TB, records []Record, globalPaths []string) []byte {
	tb.Helper()

	var unnamed, named uint32
	for _, r := range records {
		if r.Path != "" {
			named++
		} else {
			if named > 0 {
				tb.Fatalf("testutil: hash-only record after named record")
			}
			unnamed++
		}
	}

	headerEnd := 12 + int(unnamed)*20 + int(named)*(pathSize+16)
	header := new(bytes.Buffer)
	data := new(bytes.Buffer)

	putU32(header, unnamed)
	putU32(header, named)
	putU32(header, 0) // patched below

	for _, r := range records {
		payload := r.Data
		var zSize uint32
		if r.Compress {
			packed, err := deflate.Compress(r.Data)
			if err != nil {
				tb.Fatalf("testutil: compress: %v", err)
			}
			payload = packed
			zSize = uint32(len(packed)) //nolint:gosec // test payloads are small
		}

		if r.Path != "" {
			header.Write(FixedString(r.Path, pathSize, pathPad))
		} else {
			hash := r.Hash
			if hash == 0 && r.Name != "" {
				hash = namehash.HashPath(r.Name)
			}
			putU32(header, hash)
		}
		putU32(header, uint32(int32(len(r.Data))+r.SizeDelta)) //nolint:gosec // test payloads are small
		putU32(header, zSize)
		putU32(header, uint32(headerEnd+data.Len())) //nolint:gosec // test payloads are small
		putU32(header, r.Reserved)
		data.Write(payload)
	}

	out := append(header.Bytes(), data.Bytes()...)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(out))) //nolint:gosec // test archives are small

	names := new(bytes.Buffer)
	putU32(names, uint32(len(globalPaths))) //nolint:gosec // test archives are small
	for _, p := range globalPaths {
		names.Write(FixedString(p, pathSize, 0))
	}
	return append(out, names.Bytes()...)
}

// FixedString returns s NUL-terminated and padded to width with pad.
func FixedString(s string, width int, pad byte) []byte {
	field := bytes.Repeat([]byte{pad}, width)
	copy(field, s)
	field[len(s)] = 0
	return field
}

// ImagePayload returns an image payload with a header and pixel bytes.
func ImagePayload(width, height uint32, pixels []byte) []byte {
	var b bytes.Buffer
	b.WriteString("IMGd")
	putU32(&b, width)
	putU32(&b, height)
	b.Write(pixels)
	return b.Bytes()
}

// Material describes one material for ModelPayload.
type Material struct {
	Name    string
	Texture string
	Flags   uint32
}

// ModelPayload returns a model payload with the given materials and tail.
func ModelPayload(materials []Material, tail []byte) []byte {
	var b bytes.Buffer
	b.WriteString("6YTV")
	putU32(&b, uint32(len(materials))) //nolint:gosec // test payloads are small
	for _, m := range materials {
		b.Write(FixedString(m.Name, 32, 0))
		b.Write(FixedString(m.Texture, 32, 0))
		putU32(&b, m.Flags)
	}
	b.Write(tail)
	return b.Bytes()
}

// Chunk describes one chunk for ChunkedPayload. Tag "MOD" and "TEX"
// chunks take Path; others take Data.
type Chunk struct {
	Tag  string
	Path string
	Data []byte
}

// ChunkedPayload returns a chunked resource payload.
func ChunkedPayload(chunks ...Chunk) []byte {
	var b bytes.Buffer
	b.WriteString("TOC\x00")
	putU32(&b, uint32(len(chunks))) //nolint:gosec // test payloads are small
	for _, c := range chunks {
		var tag [4]byte
		copy(tag[:], c.Tag)
		b.Write(tag[:])
		if c.Tag == "MOD" || c.Tag == "TEX" {
			putU32(&b, resourcePathSize)
			b.Write(FixedString(c.Path, resourcePathSize, pathPad))
			continue
		}
		putU32(&b, uint32(len(c.Data))) //nolint:gosec // test payloads are small
		b.Write(c.Data)
	}
	return b.Bytes()
}

func putU32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}
