package deflate

import (
	"bytes"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	random := make([]byte, 4096)
	_, err := rand.Read(random)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"nil", nil},
		{"single byte", []byte{0x42}},
		{"text", []byte("the quick brown frog jumps over the lazy log")},
		{"repetitive", bytes.Repeat([]byte("TOC\x00"), 2048)},
		{"random", random},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			packed, err := Compress(tt.data)
			require.NoError(t, err)

			got, err := Decompress(packed, len(tt.data))
			require.NoError(t, err)
			assert.Len(t, got, len(tt.data))
			assert.True(t, bytes.Equal(tt.data, got))
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 100)
	packed, err := Compress(data)
	require.NoError(t, err)

	_, err = Decompress(packed, len(data)+1)
	require.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Decompress(packed, len(data)-1)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not a zlib stream"), 10)
	require.ErrorIs(t, err, ErrDecompression)
}

func TestCodecLevels(t *testing.T) {
	data := bytes.Repeat([]byte("frogger"), 512)
	for _, level := range []int{0, 1, 6, 9, 42} {
		c := NewCodec(level)
		packed, err := c.Compress(data)
		require.NoError(t, err)
		got, err := c.Decompress(packed, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
	assert.Equal(t, DefaultLevel, NewCodec(42).Level())
}

func TestCodecConcurrentUse(t *testing.T) {
	c := NewCodec(DefaultLevel)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := bytes.Repeat([]byte{byte(i)}, 1000+i)
			packed, err := c.Compress(data)
			if !assert.NoError(t, err) {
				return
			}
			got, err := c.Decompress(packed, len(data))
			if assert.NoError(t, err) {
				assert.Equal(t, data, got)
			}
		}(i)
	}
	wg.Wait()
}
