package databin

import (
	"fmt"

	"github.com/meigma/databin/internal/binio"
	"github.com/meigma/databin/internal/sniff"
)

// ChunkTag identifies a chunk inside a chunked resource file.
type ChunkTag [4]byte

// Chunk tags with decoded payloads.
var (
	// ChunkModel references a model entry by full path.
	ChunkModel = ChunkTag{'M', 'O', 'D', 0}

	// ChunkTexture references an image entry by full path.
	ChunkTexture = ChunkTag{'T', 'E', 'X', 0}
)

// ResourcePathSize is the width of the path field in reference chunks.
const ResourcePathSize = 260

func (t ChunkTag) String() string {
	end := len(t)
	for end > 0 && t[end-1] == 0 {
		end--
	}
	return string(t[:end])
}

// Chunk is one resource in a chunked file. Reference chunks carry Path;
// every other chunk keeps its payload in Data.
type Chunk struct {
	Tag  ChunkTag
	Path string
	Data []byte
}

// IsReference reports whether the chunk names another entry.
func (c *Chunk) IsReference() bool {
	return c.Tag == ChunkModel || c.Tag == ChunkTexture
}

// ChunkedRecord is a table of contents followed by resource chunks.
//
// Model reference chunks drive cross-entry resolution: in phase 1 they name
// the model entry they point at and the texture entries its materials use,
// and in phase 2 they link each material to its texture entry.
type ChunkedRecord struct {
	baseRecord
	Chunks []Chunk
}

func (r *ChunkedRecord) Kind() RecordKind { return KindChunked }

func (r *ChunkedRecord) Parse(data []byte) error {
	rd := binio.NewBytesReader(data)
	if _, err := rd.Bytes(len(sniff.ChunkedSignature)); err != nil {
		return err
	}
	count, err := rd.Uint32()
	if err != nil {
		return err
	}
	// Each chunk needs at least its tag and size.
	if int64(count)*8 > rd.Remaining() {
		return fmt.Errorf("chunk table of %d entries exceeds %d remaining bytes", count, rd.Remaining())
	}

	r.Chunks = make([]Chunk, 0, count)
	for i := range count {
		at := rd.Pos()
		var c Chunk
		if err := rd.ReadFull(c.Tag[:]); err != nil {
			return err
		}
		size, err := rd.Uint32()
		if err != nil {
			return err
		}
		if int64(size) > rd.Remaining() {
			return fmt.Errorf("chunk %d (%s) at %#x: size %d exceeds %d remaining bytes", i, c.Tag, at, size, rd.Remaining())
		}
		if c.IsReference() {
			if size != ResourcePathSize {
				return fmt.Errorf("chunk %d (%s) at %#x: reference size %d, want %d", i, c.Tag, at, size, ResourcePathSize)
			}
			if c.Path, err = rd.FixedString(ResourcePathSize); err != nil {
				return err
			}
		} else if c.Data, err = rd.Bytes(int(size)); err != nil {
			return err
		}
		r.Chunks = append(r.Chunks, c)
	}
	if rd.Remaining() != 0 {
		return fmt.Errorf("%d trailing bytes after chunk table", rd.Remaining())
	}
	return nil
}

func (r *ChunkedRecord) Serialize() ([]byte, error) {
	var buf binio.Buffer
	w, err := binio.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := w.Bytes(sniff.ChunkedSignature); err != nil {
		return nil, err
	}
	if err := w.Uint32(uint32(len(r.Chunks))); err != nil { //nolint:gosec // chunk count bounded by payload size
		return nil, err
	}
	for _, c := range r.Chunks {
		if err := w.Bytes(c.Tag[:]); err != nil {
			return nil, err
		}
		if c.IsReference() {
			if err := w.Uint32(ResourcePathSize); err != nil {
				return nil, err
			}
			if err := w.FixedString(c.Path, ResourcePathSize, binio.PathPad, ErrPathTooLong); err != nil {
				return nil, err
			}
			continue
		}
		if err := w.Uint32(uint32(len(c.Data))); err != nil { //nolint:gosec // chunk size bounded by payload size
			return nil, err
		}
		if err := w.Bytes(c.Data); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// OnPhase1 names every referenced entry. Model references also name the
// textures of the model's materials, which live next to the model.
func (r *ChunkedRecord) OnPhase1(ctx *LoadContext) {
	a := ctx.Archive()
	for i := range r.Chunks {
		c := &r.Chunks[i]
		switch c.Tag {
		case ChunkModel:
			target := a.ApplyFileName(c.Path, true)
			if model, ok := modelOf(target); ok {
				ctx.ApplyLevelTextureNames(r.entry, c.Path, model.Materials)
			}
		case ChunkTexture:
			if target := a.ApplyFileName(c.Path, true); target != nil {
				ctx.RegisterTexture(target)
			}
		}
	}
}

// OnPhase2 links the materials of every referenced model to their textures.
// Missing models were already reported in phase 1.
func (r *ChunkedRecord) OnPhase2(ctx *LoadContext) {
	a := ctx.Archive()
	for i := range r.Chunks {
		c := &r.Chunks[i]
		if c.Tag != ChunkModel {
			continue
		}
		target, _ := a.FindByPath(c.Path)
		if model, ok := modelOf(target); ok {
			ctx.ResolveMaterialTextures(r.entry, model.Materials)
		}
	}
}

// References returns the entries named by reference chunks, skipping
// references that do not resolve.
func (r *ChunkedRecord) References() []*Entry {
	var out []*Entry
	for i := range r.Chunks {
		c := &r.Chunks[i]
		if !c.IsReference() || r.entry == nil || r.entry.archive == nil {
			continue
		}
		if e, ok := r.entry.archive.FindByPath(c.Path); ok {
			out = append(out, e)
		}
	}
	return out
}

func modelOf(e *Entry) (*ModelRecord, bool) {
	if e == nil {
		return nil, false
	}
	m, ok := e.record.(*ModelRecord)
	return m, ok
}
