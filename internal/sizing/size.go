// Package sizing provides safe size arithmetic and conversions for the
// container's 32-bit length and offset fields.
package sizing

import "math"

// ToUint32 converts an int to uint32, returning overflowErr if it doesn't fit.
func ToUint32(size int, overflowErr error) (uint32, error) {
	if size < 0 || uint64(size) > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(size), nil
}

// Int64ToUint32 converts an int64 offset to uint32, returning overflowErr if it doesn't fit.
func Int64ToUint32(off int64, overflowErr error) (uint32, error) {
	if off < 0 || off > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(off), nil
}

// ToInt converts a uint32 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint32, overflowErr error) (int, error) {
	if uint64(size) > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// AddInt64 adds two non-negative int64 values, returning (result, false) on overflow.
func AddInt64(a, b int64) (int64, bool) {
	if b > math.MaxInt64-a {
		return 0, false
	}
	return a + b, true
}
