package databin

import (
	"fmt"

	"github.com/meigma/databin/internal/binio"
	"github.com/meigma/databin/internal/sniff"
)

const (
	materialNameSize    = 32
	materialTextureSize = 32
	materialSize        = materialNameSize + materialTextureSize + 4
)

// Material is one entry in a model's material table.
type Material struct {
	Name        string
	TextureName string
	Flags       uint32

	// TextureID is the id of the image entry resolved for TextureName,
	// or -1 when unresolved. It is not stored in the payload.
	TextureID int
}

// Texture returns the resolved texture entry of the material, if any.
func (m *Material) Texture(a *Archive) (*Entry, bool) {
	if m.TextureID < 0 {
		return nil, false
	}
	return a.FindByID(m.TextureID)
}

// ModelRecord is a 3-D model. Only the material table is decoded; the
// geometry that follows it is kept as an opaque tail.
type ModelRecord struct {
	baseRecord
	Materials []Material
	Tail      []byte
}

func (r *ModelRecord) Kind() RecordKind { return KindModel }

func (r *ModelRecord) Parse(data []byte) error {
	rd := binio.NewBytesReader(data)
	if _, err := rd.Bytes(len(sniff.ModelSignature)); err != nil {
		return err
	}
	count, err := rd.Uint32()
	if err != nil {
		return err
	}
	if int64(count)*materialSize > rd.Remaining() {
		return fmt.Errorf("material table of %d entries exceeds %d remaining bytes", count, rd.Remaining())
	}

	r.Materials = make([]Material, count)
	for i := range r.Materials {
		m := &r.Materials[i]
		if m.Name, err = rd.FixedString(materialNameSize); err != nil {
			return err
		}
		if m.TextureName, err = rd.FixedString(materialTextureSize); err != nil {
			return err
		}
		if m.Flags, err = rd.Uint32(); err != nil {
			return err
		}
		m.TextureID = -1
	}
	r.Tail, err = rd.Rest()
	return err
}

func (r *ModelRecord) Serialize() ([]byte, error) {
	var buf binio.Buffer
	w, err := binio.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := w.Bytes(sniff.ModelSignature); err != nil {
		return nil, err
	}
	if err := w.Uint32(uint32(len(r.Materials))); err != nil { //nolint:gosec // material count bounded by payload size
		return nil, err
	}
	for _, m := range r.Materials {
		if err := w.FixedString(m.Name, materialNameSize, 0, ErrPathTooLong); err != nil {
			return nil, err
		}
		if err := w.FixedString(m.TextureName, materialTextureSize, 0, ErrPathTooLong); err != nil {
			return nil, err
		}
		if err := w.Uint32(m.Flags); err != nil {
			return nil, err
		}
	}
	if err := w.Bytes(r.Tail); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
