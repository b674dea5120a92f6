package databin

import (
	"bytes"
	"fmt"
	"os"

	"github.com/meigma/databin/internal/binio"
	"github.com/meigma/databin/internal/namehash"
	"github.com/meigma/databin/internal/sizing"
)

const (
	headerSize      = 12
	recordFieldSize = 16
	hashRecordSize  = 4 + recordFieldSize
	namedRecordSize = PathSize + recordFieldSize
)

// Load parses a container from src.
//
// Every payload is read, inflated, classified, and parsed before the two
// resolution phases run. Any format violation aborts the load with a
// *FormatError; a record that fails to parse aborts it with an *EntryError
// unless WithDegradeOnParseError is set.
func Load(src ByteSource, opts ...Option) (*Archive, error) {
	a := New(opts...)
	if err := a.load(binio.NewReader(src)); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadBytes parses a container held in memory.
func LoadBytes(data []byte, opts ...Option) (*Archive, error) {
	return Load(bytes.NewReader(data), opts...)
}

// LoadFile parses the container stored at path.
func LoadFile(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	a, err := Load(&fileSource{File: f, size: info.Size()}, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return a, nil
}

// fileSource adapts an *os.File to ByteSource.
type fileSource struct {
	*os.File
	size int64
}

func (f *fileSource) Size() int64 {
	return f.size
}

// layout holds the section boundaries declared by the header.
type layout struct {
	unnamed   uint32
	named     uint32
	namePtr   int64
	headerEnd int64
}

func (a *Archive) load(r *binio.Reader) error {
	lay, err := a.readHeader(r)
	if err != nil {
		return err
	}
	a.log().Info("loading archive",
		"unnamed", lay.unnamed, "named", lay.named, "size", r.Size())

	if err := r.Jump(lay.namePtr, func() error {
		return a.readGlobalPaths(r)
	}); err != nil {
		return err
	}

	seeds := namehash.NewSeedTable(a.seedNames...)
	a.entries = make([]*Entry, 0, int(lay.unnamed)+int(lay.named))

	for range lay.unnamed {
		at := r.Pos()
		hash, err := r.Uint32()
		if err != nil {
			return formatError(at, err)
		}
		name, _ := seeds.Lookup(hash)
		if err := a.readRecord(r, lay, name, hash, false); err != nil {
			return err
		}
	}

	for range lay.named {
		at := r.Pos()
		path, err := r.FixedString(PathSize)
		if err != nil {
			return formatError(at, err)
		}
		if err := a.readRecord(r, lay, path, namehash.HashPath(path), true); err != nil {
			return err
		}
	}

	if r.Pos() != lay.headerEnd {
		return formatError(r.Pos(), fmt.Errorf("%w: record table ends at %#x, want %#x", ErrSectionBoundary, r.Pos(), lay.headerEnd))
	}

	a.Resolve()
	a.log().Info("archive loaded", "entries", len(a.entries), "global_paths", len(a.globalPaths))
	return nil
}

// readHeader reads the counts and name pointer and checks that the record
// table and name table fit the source.
func (a *Archive) readHeader(r *binio.Reader) (layout, error) {
	var lay layout
	var err error
	if lay.unnamed, err = r.Uint32(); err != nil {
		return lay, formatError(0, err)
	}
	if lay.named, err = r.Uint32(); err != nil {
		return lay, formatError(4, err)
	}
	namePtr, err := r.Uint32()
	if err != nil {
		return lay, formatError(8, err)
	}
	lay.namePtr = int64(namePtr)

	lay.headerEnd = headerSize + int64(lay.unnamed)*hashRecordSize + int64(lay.named)*namedRecordSize
	if lay.headerEnd > r.Size() {
		return lay, formatError(0, fmt.Errorf("%w: %d records need %d bytes, source has %d",
			ErrSectionBoundary, uint64(lay.unnamed)+uint64(lay.named), lay.headerEnd, r.Size()))
	}
	if lay.namePtr < lay.headerEnd || lay.namePtr > r.Size() {
		return lay, formatError(8, fmt.Errorf("%w: name table pointer %#x outside [%#x, %#x]",
			ErrSectionBoundary, lay.namePtr, lay.headerEnd, r.Size()))
	}
	return lay, nil
}

func (a *Archive) readGlobalPaths(r *binio.Reader) error {
	at := r.Pos()
	count, err := r.Uint32()
	if err != nil {
		return formatError(at, err)
	}
	if int64(count)*PathSize > r.Remaining() {
		return formatError(at, fmt.Errorf("%w: %d names exceed %d remaining bytes", ErrSectionBoundary, count, r.Remaining()))
	}
	a.globalPaths = make([]string, 0, count)
	for range count {
		at := r.Pos()
		name, err := r.FixedString(PathSize)
		if err != nil {
			return formatError(at, err)
		}
		a.globalPaths = append(a.globalPaths, name)
	}
	return nil
}

// readRecord reads one record's fields and payload, then creates, indexes,
// and parses its entry.
func (a *Archive) readRecord(r *binio.Reader, lay layout, name string, hash uint32, named bool) error {
	at := r.Pos()
	var fields [4]uint32
	for i := range fields {
		v, err := r.Uint32()
		if err != nil {
			return formatError(r.Pos(), err)
		}
		fields[i] = v
	}
	size, zSize, offset, reserved := fields[0], fields[1], fields[2], fields[3]

	if reserved != 0 {
		return formatError(at+12, fmt.Errorf("%w: %#x", ErrReservedField, reserved))
	}
	if a.maxEntrySize > 0 && size > a.maxEntrySize {
		return formatError(at, fmt.Errorf("%w: entry size %d exceeds limit %d", ErrSizeOverflow, size, a.maxEntrySize))
	}

	compressed := zSize != 0
	stored := size
	if compressed {
		stored = zSize
	}
	end, ok := sizing.AddInt64(int64(offset), int64(stored))
	if !ok || int64(offset) < lay.headerEnd || end > r.Size() {
		return formatError(at+8, fmt.Errorf("%w: payload [%#x, %#x) outside data section", ErrSectionBoundary, offset, end))
	}

	n, err := sizing.ToInt(stored, ErrSizeOverflow)
	if err != nil {
		return formatError(at, err)
	}
	var payload []byte
	if err := r.Jump(int64(offset), func() error {
		var err error
		payload, err = r.Bytes(n)
		return err
	}); err != nil {
		return formatError(int64(offset), err)
	}

	if compressed {
		expected, err := sizing.ToInt(size, ErrSizeOverflow)
		if err != nil {
			return formatError(at, err)
		}
		if payload, err = a.codec.Decompress(payload, expected); err != nil {
			return formatError(int64(offset), err)
		}
	}

	if !named {
		if prev, dup := a.primary[hash]; dup {
			return formatError(at-4, fmt.Errorf("%w: %#08x already used by entry %d", ErrDuplicateHash, hash, prev))
		}
	}

	e := &Entry{nameHash: hash, path: name, compressed: compressed, collision: named}
	a.appendEntry(e, payload)
	if err := a.attachRecord(e); err != nil {
		return err
	}
	a.log().Debug("entry loaded",
		"entry", e.id, "hash", fmt.Sprintf("%#08x", hash), "path", name,
		"kind", e.Kind().String(), "size", size, "compressed", compressed)
	return nil
}
