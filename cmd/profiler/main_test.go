package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytesPerSecond(t *testing.T) {
	t.Parallel()

	tests := map[string]int64{
		"512":     512,
		"10k":     10 << 10,
		"10MBps":  10 << 20,
		"2gb/s":   2 << 30,
		" 3 kb ": 3 << 10,
	}
	for in, want := range tests {
		got, err := parseBytesPerSecond(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "Bps", "fast", "-5", "0"} {
		_, err := parseBytesPerSecond(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunProfile_Modes(t *testing.T) {
	t.Parallel()

	cfg := config{
		files:      24,
		fileSize:   256,
		dirCount:   4,
		compressed: 0.5,
		level:      6,
		pattern:    "compressible",
		dataURL:    "local",
		iterations: 2,
		duration:   time.Second,
		readRandom: true,
		randomSeed: 1,
	}
	paths, data, err := makeArchive(cfg)
	require.NoError(t, err)
	require.Len(t, paths, cfg.files)

	for _, mode := range []string{"load", "load-http", "save", "lookup", "extract"} {
		cfg.mode = mode
		stats, err := runProfile(cfg, data, paths, t.TempDir())
		require.NoError(t, err, mode)
		assert.Equal(t, 2, stats.ops, mode)
		assert.Positive(t, stats.bytes, mode)
	}

	cfg.mode = "bogus"
	_, err = runProfile(cfg, data, paths, t.TempDir())
	require.Error(t, err)
}
