package bintype

// Kind identifies the typed representation chosen for an entry's payload.
type Kind uint8

const (
	KindOpaque Kind = iota
	KindImage
	KindModel
	KindChunked
)

// String returns the human-readable name of the record kind.
func (k Kind) String() string {
	switch k {
	case KindOpaque:
		return "opaque"
	case KindImage:
		return "image"
	case KindModel:
		return "model"
	case KindChunked:
		return "chunked"
	default:
		return "unknown"
	}
}
