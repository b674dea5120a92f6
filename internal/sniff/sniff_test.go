package sniff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meigma/databin/internal/bintype"
)

func TestClassify(t *testing.T) {
	long := bytes.Repeat([]byte{0x11}, 31)
	exact := bytes.Repeat([]byte{0x11}, 30)

	tests := []struct {
		name     string
		data     []byte
		position int
		want     bintype.Kind
	}{
		{"image signature", []byte("IMGd\x01\x00"), 0, bintype.KindImage},
		{"model signature", []byte("6YTV...."), 0, bintype.KindModel},
		{"chunked signature", []byte("TOC\x00\x00\x00\x00\x00"), 0, bintype.KindChunked},
		{"toc without nul", []byte("TOC!"), 0, bintype.KindOpaque},
		{"empty", nil, 0, bintype.KindOpaque},
		{"short prefix", []byte("IMG"), 0, bintype.KindOpaque},
		{"early unsigned", long, 100, bintype.KindOpaque},
		{"late unsigned long", long, 101, bintype.KindImage},
		{"late unsigned at threshold", exact, 500, bintype.KindOpaque},
		{"signature beats heuristic", append([]byte("6YTV"), long...), 200, bintype.KindModel},
		{"ten byte payload", []byte("0123456789"), 2, bintype.KindOpaque},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.data, tt.position))
		})
	}
}
