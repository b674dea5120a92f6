// Package sniff chooses a record kind from a payload's leading bytes.
package sniff

import (
	"bytes"

	"github.com/meigma/databin/internal/bintype"
)

// Signatures recognized at the start of a payload.
var (
	ImageSignature   = []byte("IMGd")
	ModelSignature   = []byte("6YTV")
	ChunkedSignature = []byte("TOC\x00")
)

const (
	// LegacyImageMinPosition is the entry position after which unsigned
	// payloads may be treated as images.
	LegacyImageMinPosition = 100

	// LegacyImageMinSize is the payload size above which the legacy image
	// fallback applies.
	LegacyImageMinSize = 30
)

// Classify returns the record kind for a payload at the given entry position.
//
// Signatures are checked first. Unsigned payloads at a position greater
// than LegacyImageMinPosition and longer than LegacyImageMinSize bytes are
// classified as images; the shipped archives store headerless textures in
// that region and depend on it. Everything else is opaque.
func Classify(data []byte, position int) bintype.Kind {
	switch {
	case bytes.HasPrefix(data, ImageSignature):
		return bintype.KindImage
	case bytes.HasPrefix(data, ModelSignature):
		return bintype.KindModel
	case bytes.HasPrefix(data, ChunkedSignature):
		return bintype.KindChunked
	case position > LegacyImageMinPosition && len(data) > LegacyImageMinSize:
		return bintype.KindImage
	default:
		return bintype.KindOpaque
	}
}
