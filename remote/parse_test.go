package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRange(t *testing.T) {
	t.Parallel()

	size, err := parseContentRange("bytes 0-0/1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	for _, bad := range []string{"", "bytes 0-0/*", "items 0-0/10", "bytes 0-0", "bytes 0-0/-5", "bytes 0-0/x"} {
		_, err := parseContentRange(bad)
		assert.Error(t, err, bad)
	}
}
