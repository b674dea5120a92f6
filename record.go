package databin

// Record is the typed representation of an entry's payload.
//
// The record kind is chosen once, from the payload's leading bytes, when
// the entry is created, and Parse receives the inflated payload. The
// phase hooks run after every entry in the archive has been parsed:
// OnPhase1 for every entry, then OnPhase2 for every entry.
// Records that only need names of other entries use OnPhase1; records
// that link to other entries by name use OnPhase2, when every name that
// phase 1 assigns is already in place.
type Record interface {
	Kind() RecordKind
	Parse(data []byte) error
	Serialize() ([]byte, error)
	OnPhase1(ctx *LoadContext)
	OnPhase2(ctx *LoadContext)
}

// baseRecord supplies the owning entry and no-op phase hooks.
type baseRecord struct {
	entry *Entry
}

// Entry returns the entry the record belongs to.
func (b *baseRecord) Entry() *Entry {
	return b.entry
}

func (b *baseRecord) OnPhase1(*LoadContext) {}

func (b *baseRecord) OnPhase2(*LoadContext) {}

// newRecord returns an empty record of the given kind owned by e.
func newRecord(kind RecordKind, e *Entry) Record {
	base := baseRecord{entry: e}
	switch kind {
	case KindImage:
		return &ImageRecord{baseRecord: base}
	case KindModel:
		return &ModelRecord{baseRecord: base}
	case KindChunked:
		return &ChunkedRecord{baseRecord: base}
	default:
		return &OpaqueRecord{baseRecord: base}
	}
}

// OpaqueRecord keeps a payload it does not understand and writes it back
// unchanged.
type OpaqueRecord struct {
	baseRecord
	Data []byte
}

func (r *OpaqueRecord) Kind() RecordKind { return KindOpaque }

func (r *OpaqueRecord) Parse(data []byte) error {
	r.Data = data
	return nil
}

func (r *OpaqueRecord) Serialize() ([]byte, error) {
	return r.Data, nil
}
