package databin

import (
	"bytes"
	"encoding/binary"

	"github.com/meigma/databin/internal/sniff"
)

// imageHeaderSize covers the signature, width, and height.
const imageHeaderSize = 12

// ImageRecord is a texture. Headerless images, recognized only by their
// position and size, report zero dimensions.
type ImageRecord struct {
	baseRecord
	Data       []byte
	Width      uint32
	Height     uint32
	Headerless bool
}

func (r *ImageRecord) Kind() RecordKind { return KindImage }

func (r *ImageRecord) Parse(data []byte) error {
	r.Data = data
	r.Headerless = !bytes.HasPrefix(data, sniff.ImageSignature)
	if !r.Headerless && len(data) >= imageHeaderSize {
		r.Width = binary.LittleEndian.Uint32(data[4:8])
		r.Height = binary.LittleEndian.Uint32(data[8:12])
	}
	return nil
}

// Serialize writes the pixel data back verbatim.
func (r *ImageRecord) Serialize() ([]byte, error) {
	return r.Data, nil
}
