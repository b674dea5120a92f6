// Package manifest describes an extracted archive so it can be packed again.
//
// Extract writes every entry of an archive to a directory together with a
// manifest: one record per entry carrying its id, hash, known path,
// storage flags, and a BLAKE3 digest of its payload. Pack reads the
// directory back into an archive with the same entry order, hashes, and
// flags, picking up any files that were edited in between.
//
// The manifest is CBOR with Core Deterministic Encoding, compressed with
// zstd, so the same archive always produces the same manifest bytes.
package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/meigma/databin"
)

// Version is the manifest format version written by this package.
const Version = 1

// FileName is the name of the manifest inside an extracted directory.
const FileName = "manifest.cbor.zst"

// FileListName is the name of the human-readable listing written next to
// the manifest.
const FileListName = "file-list.txt"

// unnamedDir holds entries whose path is unknown.
const unnamedDir = "_unnamed"

var (
	// ErrVersion is returned when a manifest has an unsupported version.
	ErrVersion = errors.New("manifest: unsupported version")

	// ErrDigestMismatch is returned by strict packs when a file changed.
	ErrDigestMismatch = errors.New("manifest: digest mismatch")

	// ErrHashMismatch is returned when an entry's path does not hash to
	// its recorded hash.
	ErrHashMismatch = errors.New("manifest: path does not match hash")

	// ErrEntryOrder is returned when entry ids are not 0..n-1 in order.
	ErrEntryOrder = errors.New("manifest: entries out of order")
)

// Manifest lists the entries of an extracted archive in id order.
type Manifest struct {
	Version     int      `cbor:"1,keyasint"`
	GlobalPaths []string `cbor:"2,keyasint,omitempty"`
	Entries     []Entry  `cbor:"3,keyasint"`
}

// Entry describes one extracted entry.
type Entry struct {
	ID         int    `cbor:"1,keyasint"`
	Hash       uint32 `cbor:"2,keyasint"`
	Path       string `cbor:"3,keyasint,omitempty"`
	Collision  bool   `cbor:"4,keyasint,omitempty"`
	Compressed bool   `cbor:"5,keyasint,omitempty"`
	Kind       string `cbor:"6,keyasint"`

	// File is the slash-separated location of the payload, relative to
	// the extracted directory.
	File string `cbor:"7,keyasint"`

	Size   int    `cbor:"8,keyasint"`
	Digest Digest `cbor:"9,keyasint"`
}

// Digest is a 32-byte BLAKE3 keyed digest of an entry payload.
type Digest [32]byte

// entryDomainKey separates entry digests from other BLAKE3 uses.
var entryDomainKey = [32]byte{
	'd', 'a', 't', 'a', 'b', 'i', 'n', '.', 'e', 'n', 't', 'r', 'y',
}

// Sum returns the digest of an entry payload.
func Sum(data []byte) Digest {
	// NewKeyed only fails for keys that are not 32 bytes.
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("manifest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Build describes every entry of a.
func Build(a *databin.Archive) (*Manifest, error) {
	m, _, err := build(a)
	return m, err
}

// build returns the manifest and the payload of each entry in id order.
func build(a *databin.Archive) (*Manifest, [][]byte, error) {
	m := &Manifest{
		Version:     Version,
		GlobalPaths: a.GlobalPaths(),
		Entries:     make([]Entry, 0, a.Len()),
	}
	payloads := make([][]byte, 0, a.Len())
	for e := range a.Entries() {
		data, err := e.Bytes()
		if err != nil {
			return nil, nil, err
		}
		path, _ := e.Path()
		m.Entries = append(m.Entries, Entry{
			ID:         e.ID(),
			Hash:       e.NameHash(),
			Path:       path,
			Collision:  e.Collision(),
			Compressed: e.Compressed(),
			Kind:       e.Kind().String(),
			File:       FilePath(e),
			Size:       len(data),
			Digest:     Sum(data),
		})
		payloads = append(payloads, data)
	}
	return m, payloads, nil
}

// FilePath returns where an entry is written inside an extracted
// directory. Named entries keep their path with '/' separators; entries
// without a usable path go under _unnamed/ by hash.
func FilePath(e *databin.Entry) string {
	if path, ok := e.Path(); ok {
		if rel := relPath(path); rel != "" {
			return rel
		}
	}
	return fmt.Sprintf("%s/%08x.%s", unnamedDir, e.NameHash(), extension(e.Kind()))
}

// relPath turns a container path into a relative slash path, or "" if the
// path cannot be stored safely.
func relPath(path string) string {
	if len(path) >= 2 && path[1] == ':' {
		path = path[2:]
	}
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '\\' || r == '/' })
	out := parts[:0]
	for _, part := range parts {
		switch part {
		case ".":
			continue
		case "..":
			return ""
		}
		out = append(out, part)
	}
	if len(out) == 0 || out[0] == unnamedDir {
		return ""
	}
	return strings.Join(out, "/")
}

func extension(kind databin.RecordKind) string {
	switch kind {
	case databin.KindImage:
		return "img"
	case databin.KindModel:
		return "mdl"
	case databin.KindChunked:
		return "toc"
	default:
		return "bin"
	}
}
