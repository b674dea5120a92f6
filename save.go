package databin

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/databin/internal/binio"
	"github.com/meigma/databin/internal/sizing"
)

// recordSlots are the placeholder offsets of one record's patched fields.
type recordSlots struct {
	size   int64
	zSize  int64
	offset int64
}

// Save writes the whole container to w.
//
// Records are written hash-only records first, then records stored by
// name, each group in id order; payloads follow in the same order, then
// the name table. Archives produced by Load are already in that order, so
// ids survive a save and reload. Sizes and offsets are backpatched once
// each payload is written. Offsets are relative to w's position when Save
// is called.
//
// A failed Save leaves w partially written; the output must be discarded.
func (a *Archive) Save(w io.WriteSeeker) error {
	bw, err := binio.NewWriter(w)
	if err != nil {
		return err
	}
	base := bw.Pos()

	unnamed, named := a.diskOrder()
	order := append(append(make([]*Entry, 0, len(a.entries)), unnamed...), named...)
	a.log().Info("saving archive", "unnamed", len(unnamed), "named", len(named))

	if err := bw.Uint32(uint32(len(unnamed))); err != nil { //nolint:gosec // entry count bounded by load
		return err
	}
	if err := bw.Uint32(uint32(len(named))); err != nil { //nolint:gosec // entry count bounded by load
		return err
	}
	namePtrSlot, err := bw.Placeholder()
	if err != nil {
		return err
	}

	slots := make([]recordSlots, len(order))
	for i, e := range order {
		if slots[i], err = writeRecordHeader(bw, e); err != nil {
			return fmt.Errorf("write record header [entry %d]: %w", e.id, err)
		}
	}

	for i, e := range order {
		if err := a.writePayload(bw, base, e, slots[i]); err != nil {
			return fmt.Errorf("write payload [entry %d]: %w", e.id, err)
		}
	}

	namePtr, err := sizing.Int64ToUint32(bw.Pos()-base, ErrSizeOverflow)
	if err != nil {
		return err
	}
	if err := bw.Patch(namePtrSlot, namePtr); err != nil {
		return err
	}
	if err := bw.Uint32(uint32(len(a.globalPaths))); err != nil { //nolint:gosec // name count bounded by load
		return err
	}
	for _, p := range a.globalPaths {
		if err := bw.FixedString(p, PathSize, 0, ErrPathTooLong); err != nil {
			return fmt.Errorf("write name table: %w", err)
		}
	}

	a.log().Info("archive saved", "entries", len(order), "size", bw.Pos()-base)
	return nil
}

// writeRecordHeader writes the hash or padded path of e followed by
// placeholder size, zSize, and offset fields and a zero reserved field.
func writeRecordHeader(bw *binio.Writer, e *Entry) (recordSlots, error) {
	var slots recordSlots
	var err error
	if e.storedByName() {
		err = bw.FixedString(e.path, PathSize, binio.PathPad, ErrPathTooLong)
	} else {
		err = bw.Uint32(e.nameHash)
	}
	if err != nil {
		return slots, err
	}
	if slots.size, err = bw.Placeholder(); err != nil {
		return slots, err
	}
	if slots.zSize, err = bw.Placeholder(); err != nil {
		return slots, err
	}
	if slots.offset, err = bw.Placeholder(); err != nil {
		return slots, err
	}
	return slots, bw.Uint32(0)
}

// writePayload writes e's bytes at the cursor, compressing them when the
// entry is flagged, and patches the record's size, zSize, and offset.
func (a *Archive) writePayload(bw *binio.Writer, base int64, e *Entry, slots recordSlots) error {
	data, err := e.Bytes()
	if err != nil {
		return err
	}
	dataAt := bw.Pos()

	size, err := sizing.ToUint32(len(data), ErrSizeOverflow)
	if err != nil {
		return err
	}
	if err := bw.Patch(slots.size, size); err != nil {
		return err
	}

	if e.compressed {
		if data, err = a.codec.Compress(data); err != nil {
			return err
		}
		zSize, err := sizing.ToUint32(len(data), ErrSizeOverflow)
		if err != nil {
			return err
		}
		if err := bw.Patch(slots.zSize, zSize); err != nil {
			return err
		}
	}

	if err := bw.Bytes(data); err != nil {
		return err
	}

	offset, err := sizing.Int64ToUint32(dataAt-base, ErrSizeOverflow)
	if err != nil {
		return err
	}
	if err := bw.Patch(slots.offset, offset); err != nil {
		return err
	}
	a.log().Debug("entry saved",
		"entry", e.id, "path", e.path, "size", size, "stored", len(data), "compressed", e.compressed)
	return nil
}

// SaveBytes returns the serialized container.
func (a *Archive) SaveBytes() ([]byte, error) {
	var buf binio.Buffer
	if err := a.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveFile writes the container to path.
//
// The container is written to a temp file in the same directory and renamed
// over path, so a failed save never replaces an existing file. Parent
// directories are created as needed.
func (a *Archive) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".databin-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := a.Save(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
