package databin

import (
	"fmt"

	"github.com/meigma/databin/internal/namehash"
)

// Entry is one stored sub-file.
type Entry struct {
	archive    *Archive
	id         int
	nameHash   uint32
	path       string
	compressed bool
	collision  bool
	raw        []byte
	record     Record
	modified   bool
}

// ID returns the entry's position in the archive.
func (e *Entry) ID() int {
	return e.id
}

// NameHash returns the hash of the entry's file id.
func (e *Entry) NameHash() uint32 {
	return e.nameHash
}

// Path returns the entry's full path, if known.
func (e *Entry) Path() (string, bool) {
	return e.path, e.path != ""
}

// HasPath reports whether the entry's full path is known.
func (e *Entry) HasPath() bool {
	return e.path != ""
}

// FileID returns the canonical file id of the entry's path, or "" if the
// path is unknown.
func (e *Entry) FileID() string {
	if e.path == "" {
		return ""
	}
	return namehash.FileID(e.path)
}

// DisplayName returns the path when known and the hash otherwise.
func (e *Entry) DisplayName() string {
	if e.path != "" {
		return e.path
	}
	return fmt.Sprintf("%#08x", e.nameHash)
}

// Compressed reports whether the entry is stored deflated.
func (e *Entry) Compressed() bool {
	return e.compressed
}

// SetCompressed controls whether the entry is deflated on save.
func (e *Entry) SetCompressed(compressed bool) {
	e.compressed = compressed
}

// Collision reports whether the entry shares its hash with another entry
// and is therefore stored with its full path.
func (e *Entry) Collision() bool {
	return e.collision
}

// Kind returns the kind of the entry's typed record.
func (e *Entry) Kind() RecordKind {
	if e.record == nil {
		return KindOpaque
	}
	return e.record.Kind()
}

// Record returns the entry's typed record.
func (e *Entry) Record() Record {
	return e.record
}

// RawBytes returns the payload as it was loaded or last replaced.
// The slice must be treated as immutable.
func (e *Entry) RawBytes() []byte {
	return e.raw
}

// MarkModified records that the typed record was changed in place, so the
// next Bytes call serializes the record instead of reusing RawBytes.
func (e *Entry) MarkModified() {
	e.modified = true
}

// Modified reports whether the record has been changed since it was parsed.
func (e *Entry) Modified() bool {
	return e.modified
}

// Bytes returns the payload to store: the cached raw bytes when the record
// is unmodified, otherwise a fresh serialization of the record.
func (e *Entry) Bytes() ([]byte, error) {
	if !e.modified && e.raw != nil {
		return e.raw, nil
	}
	if e.record == nil {
		return e.raw, nil
	}
	data, err := e.record.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize %s record [entry %d]: %w", e.Kind(), e.id, err)
	}
	return data, nil
}

// storedByName reports whether the entry's record carries its full path.
func (e *Entry) storedByName() bool {
	return e.path != "" && e.collision
}
