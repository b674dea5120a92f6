package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// manifest always produces identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so newer manifests stay readable.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("manifest: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("manifest: CBOR decoder initialization failed: " + err.Error())
	}
}

// Write encodes m as zstd-compressed CBOR.
func Write(w io.Writer, m *Manifest) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if err := encMode.NewEncoder(zw).Encode(m); err != nil {
		_ = zw.Close() //nolint:errcheck // the encode error is reported
		return fmt.Errorf("encode manifest: %w", err)
	}
	return zw.Close()
}

// Read decodes a manifest written by Write.
func Read(r io.Reader) (*Manifest, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer zr.Close()

	var m Manifest
	if err := decMode.NewDecoder(zr).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, m.Version)
	}
	return &m, nil
}

// Encode returns the serialized manifest.
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFile reads the manifest stored at path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
