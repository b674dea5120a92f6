package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestToUint32(t *testing.T) {
	got, err := ToUint32(1234, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), got)

	_, err = ToUint32(-1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)

	_, err = ToUint32(math.MaxUint32+1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)
}

func TestInt64ToUint32(t *testing.T) {
	got, err := Int64ToUint32(math.MaxUint32, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), got)

	_, err = Int64ToUint32(math.MaxUint32+1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)
}

func TestAddInt64(t *testing.T) {
	sum, ok := AddInt64(3, 4)
	assert.True(t, ok)
	assert.Equal(t, int64(7), sum)

	_, ok = AddInt64(math.MaxInt64, 1)
	assert.False(t, ok)
}
