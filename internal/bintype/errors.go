package bintype

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrFormat is the root of every format violation.
	ErrFormat = errors.New("databin: format violation")

	// ErrReservedField is returned when a record's reserved field is nonzero.
	ErrReservedField = errors.New("databin: reserved field is nonzero")

	// ErrSectionBoundary is returned when a pointer or payload falls outside
	// the section it must live in.
	ErrSectionBoundary = errors.New("databin: section boundary mismatch")

	// ErrSizeMismatch is returned when inflated data does not have the declared size.
	ErrSizeMismatch = errors.New("databin: decompressed size mismatch")

	// ErrDecompression is returned when a deflate stream cannot be inflated.
	ErrDecompression = errors.New("databin: decompression failed")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("databin: size overflow")

	// ErrPathTooLong is returned when a path does not fit its fixed-width field.
	ErrPathTooLong = errors.New("databin: path too long")
)
