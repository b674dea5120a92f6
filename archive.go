package databin

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/meigma/databin/internal/binio"
	"github.com/meigma/databin/internal/bintype"
	"github.com/meigma/databin/internal/deflate"
	"github.com/meigma/databin/internal/namehash"
	"github.com/meigma/databin/internal/sniff"
)

// RecordKind identifies the typed representation of an entry.
type RecordKind = bintype.Kind

// Re-export record kinds.
const (
	KindOpaque  = bintype.KindOpaque
	KindImage   = bintype.KindImage
	KindModel   = bintype.KindModel
	KindChunked = bintype.KindChunked
)

// ByteSource provides random access to a serialized container.
// *bytes.Reader and *io.SectionReader satisfy it; see LoadFile for files.
type ByteSource = binio.Source

// PathSize is the width of every fixed-width path field.
const PathSize = 0x108

// Archive is an in-memory container.
//
// Entries live in one ordered slice and their position is their id. The
// primary index and the collision buckets hold ids, never entries, and
// every entry is reachable from exactly one of them.
type Archive struct {
	entries     []*Entry
	primary     map[uint32]int
	buckets     map[uint32][]int
	globalPaths []string

	seedNames           []string
	compressionLevel    int
	compressionLevelSet bool
	degradeOnParseError bool
	maxEntrySize        uint32
	codec               *deflate.Codec
	logger              *slog.Logger
}

// New creates an empty Archive.
func New(opts ...Option) *Archive {
	a := &Archive{
		primary:      make(map[uint32]int),
		buckets:      make(map[uint32][]int),
		maxEntrySize: DefaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(a)
	}
	level := deflate.DefaultLevel
	if a.compressionLevelSet {
		level = a.compressionLevel
	}
	a.codec = deflate.NewCodec(level)
	return a
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns an iterator over entries in id order.
func (a *Archive) Entries() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for _, e := range a.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// GlobalPaths returns a copy of the trailing name table.
func (a *Archive) GlobalPaths() []string {
	return slices.Clone(a.globalPaths)
}

// SetGlobalPaths replaces the trailing name table.
func (a *Archive) SetGlobalPaths(paths []string) {
	a.globalPaths = slices.Clone(paths)
}

// FindByID returns the entry at position id.
func (a *Archive) FindByID(id int) (*Entry, bool) {
	if id < 0 || id >= len(a.entries) {
		return nil, false
	}
	return a.entries[id], true
}

// FindByPath returns the entry stored under path.
//
// The path is reduced to its file id and hashed. An entry indexed under the
// hash without a collision is returned directly. Otherwise the collision
// bucket for the hash is scanned in insertion order and the first entry
// whose path has the same file id wins.
func (a *Archive) FindByPath(path string) (*Entry, bool) {
	id := namehash.FileID(path)
	hash := namehash.Hash(id)

	if idx, ok := a.primary[hash]; ok {
		return a.entries[idx], true
	}
	for _, idx := range a.buckets[hash] {
		e := a.entries[idx]
		if e.path != "" && namehash.FileID(e.path) == id {
			return e, true
		}
	}
	return nil, false
}

// FindByHash returns every entry stored under hash, in id order.
func (a *Archive) FindByHash(hash uint32) []*Entry {
	if idx, ok := a.primary[hash]; ok {
		return []*Entry{a.entries[idx]}
	}
	bucket := a.buckets[hash]
	out := make([]*Entry, 0, len(bucket))
	for _, idx := range bucket {
		out = append(out, a.entries[idx])
	}
	return out
}

// FindReferenced looks up path on behalf of another entry and logs a
// warning naming the referencing entry when nothing matches.
// from may be nil.
func (a *Archive) FindReferenced(from *Entry, path string) (*Entry, bool) {
	e, ok := a.FindByPath(path)
	if !ok {
		attrs := []any{"path", path, "file_id", namehash.FileID(path)}
		if from != nil {
			attrs = append(attrs, "referenced_by", from.DisplayName())
		}
		a.log().Warn("referenced file not found", attrs...)
	}
	return e, ok
}

// ApplyFileName records path as the name of the entry it resolves to.
// It returns nil when no entry matches; a warning is logged if warn is set.
func (a *Archive) ApplyFileName(path string, warn bool) *Entry {
	if e, ok := a.FindByPath(path); ok {
		e.path = path
		return e
	}
	if warn {
		a.log().Warn("no entry matches applied file name",
			"path", path, "hash", fmt.Sprintf("%#08x", namehash.HashPath(path)))
	}
	return nil
}

// Add appends a new entry stored under path.
//
// If another entry already uses the same hash, both become collision
// entries and are written with their full paths; the existing entry must
// then have a known path. Paths of entries without a collision are not
// stored in the container and are only recovered on load through the
// seed table or phase-1 resolution.
//
// Save writes hash-only records before collision records, so entries added
// after a collision entry move ahead of it and their ids shift when the
// saved container is loaded again.
//
// The payload is classified and parsed immediately. Resolution is not run;
// call Resolve once all entries are added.
func (a *Archive) Add(path string, data []byte, compressed bool) (*Entry, error) {
	if len(path)+1 > PathSize {
		return nil, fmt.Errorf("%w: %q", ErrPathTooLong, path)
	}
	hash := namehash.HashPath(path)

	promoted := -1
	if idx, ok := a.primary[hash]; ok {
		existing := a.entries[idx]
		if existing.path == "" {
			return nil, fmt.Errorf("%w: %q collides with entry %d (%#08x)", ErrUnnamedCollision, path, idx, hash)
		}
		if namehash.SameFile(existing.path, path) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePath, path)
		}
		promoted = idx
	}
	for _, idx := range a.buckets[hash] {
		if namehash.SameFile(a.entries[idx].path, path) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePath, path)
		}
	}

	if promoted >= 0 {
		delete(a.primary, hash)
		a.entries[promoted].collision = true
		a.buckets[hash] = []int{promoted}
	}
	_, collision := a.buckets[hash]

	e, err := a.insert(&Entry{nameHash: hash, path: path, compressed: compressed, collision: collision}, data)
	if err != nil && promoted >= 0 {
		delete(a.buckets, hash)
		a.entries[promoted].collision = false
		a.primary[hash] = promoted
	}
	return e, err
}

// AddNamed appends a new collision entry stored under path, whether or not
// another entry shares its hash. This reproduces a loaded named record
// exactly: the entry goes into its hash's collision bucket, is written with
// its full path, and may share the hash with a hash-only entry.
func (a *Archive) AddNamed(path string, data []byte, compressed bool) (*Entry, error) {
	if len(path)+1 > PathSize {
		return nil, fmt.Errorf("%w: %q", ErrPathTooLong, path)
	}
	hash := namehash.HashPath(path)
	for _, idx := range a.buckets[hash] {
		if namehash.SameFile(a.entries[idx].path, path) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePath, path)
		}
	}
	return a.insert(&Entry{nameHash: hash, path: path, compressed: compressed, collision: true}, data)
}

// AddHashed appends a new entry known only by its hash.
func (a *Archive) AddHashed(hash uint32, data []byte, compressed bool) (*Entry, error) {
	if _, ok := a.primary[hash]; ok {
		return nil, fmt.Errorf("%w: %#08x", ErrDuplicateHash, hash)
	}
	if _, ok := a.buckets[hash]; ok {
		return nil, fmt.Errorf("%w: %#08x", ErrUnnamedCollision, hash)
	}
	return a.insert(&Entry{nameHash: hash, compressed: compressed}, data)
}

// insert indexes e, appends it, and parses its record. On parse failure the
// entry is removed again.
func (a *Archive) insert(e *Entry, data []byte) (*Entry, error) {
	if err := a.checkSize(data); err != nil {
		return nil, err
	}
	a.appendEntry(e, data)
	if err := a.attachRecord(e); err != nil {
		a.popEntry()
		return nil, err
	}
	return e, nil
}

// checkSize applies the same entry size limit Load enforces.
func (a *Archive) checkSize(data []byte) error {
	if a.maxEntrySize > 0 && uint64(len(data)) > uint64(a.maxEntrySize) {
		return fmt.Errorf("%w: entry size %d exceeds limit %d", ErrSizeOverflow, len(data), a.maxEntrySize)
	}
	return nil
}

// appendEntry assigns e the next id and indexes it. Entries are appended
// before their record is parsed so a record can find its own id.
func (a *Archive) appendEntry(e *Entry, data []byte) {
	e.archive = a
	e.id = len(a.entries)
	e.raw = data
	a.entries = append(a.entries, e)
	if e.collision {
		a.buckets[e.nameHash] = append(a.buckets[e.nameHash], e.id)
	} else {
		a.primary[e.nameHash] = e.id
	}
}

// popEntry removes the most recently appended entry.
func (a *Archive) popEntry() {
	last := len(a.entries) - 1
	e := a.entries[last]
	a.entries = a.entries[:last]
	if !e.collision {
		delete(a.primary, e.nameHash)
		return
	}
	bucket := a.buckets[e.nameHash]
	bucket = bucket[:len(bucket)-1]
	if len(bucket) == 0 {
		delete(a.buckets, e.nameHash)
		return
	}
	a.buckets[e.nameHash] = bucket
}

// attachRecord classifies e's payload, builds its record, and parses it.
func (a *Archive) attachRecord(e *Entry) error {
	kind := sniff.Classify(e.raw, e.id)
	rec := newRecord(kind, e)
	if err := rec.Parse(e.raw); err != nil {
		if !a.degradeOnParseError {
			return &EntryError{Index: e.id, Kind: kind, Err: err}
		}
		a.log().Warn("record parse failed, keeping entry as opaque",
			"entry", e.id, "kind", kind.String(), "error", err)
		rec = newRecord(KindOpaque, e)
		if err := rec.Parse(e.raw); err != nil {
			return &EntryError{Index: e.id, Kind: KindOpaque, Err: err}
		}
	}
	e.record = rec
	return nil
}

// ReplaceEntry swaps the payload of entry id for data.
//
// The payload is re-classified and re-parsed, and the resolution phases are
// run again over the whole archive. Name, hash, and compression flag are
// kept. On error the entry is left unchanged.
func (a *Archive) ReplaceEntry(id int, data []byte) (*Entry, error) {
	e, ok := a.FindByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoEntry, id)
	}
	if err := a.checkSize(data); err != nil {
		return nil, err
	}

	prevRaw, prevRecord, prevModified := e.raw, e.record, e.modified
	e.raw = data
	if err := a.attachRecord(e); err != nil {
		e.raw, e.record, e.modified = prevRaw, prevRecord, prevModified
		return nil, err
	}
	e.modified = false

	a.log().Debug("entry replaced", "entry", id, "kind", e.Kind().String(), "size", len(data))
	a.Resolve()
	return e, nil
}

// Resolve runs both resolution phases over every entry with a fresh
// LoadContext. Load calls it automatically.
func (a *Archive) Resolve() {
	ctx := newLoadContext(a)
	ctx.run(a.entries)
}

// diskOrder returns entries in the order their records are written:
// hash-only records first, then named records, each group in id order.
func (a *Archive) diskOrder() (unnamed, named []*Entry) {
	for _, e := range a.entries {
		if e.storedByName() {
			named = append(named, e)
		} else {
			unnamed = append(unnamed, e)
		}
	}
	return unnamed, named
}
