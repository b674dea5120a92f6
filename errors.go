package databin

import (
	"errors"
	"fmt"

	"github.com/meigma/databin/internal/bintype"
)

// Sentinel errors re-exported from internal/bintype.
var (
	// ErrFormat matches every format violation reported by Load.
	ErrFormat = bintype.ErrFormat

	// ErrReservedField is returned when a record's reserved field is nonzero.
	ErrReservedField = bintype.ErrReservedField

	// ErrSectionBoundary is returned when a pointer or payload lies outside its section.
	ErrSectionBoundary = bintype.ErrSectionBoundary

	// ErrSizeMismatch is returned when an inflated payload has the wrong size.
	ErrSizeMismatch = bintype.ErrSizeMismatch

	// ErrDecompression is returned when a payload cannot be inflated.
	ErrDecompression = bintype.ErrDecompression

	// ErrSizeOverflow is returned when a size exceeds supported limits.
	ErrSizeOverflow = bintype.ErrSizeOverflow

	// ErrPathTooLong is returned when a path does not fit a fixed-width field.
	ErrPathTooLong = bintype.ErrPathTooLong
)

// Sentinel errors specific to the databin package.
var (
	// ErrDuplicateHash is returned when two hash-only records share a hash.
	ErrDuplicateHash = errors.New("databin: duplicate name hash")

	// ErrDuplicatePath is returned when adding a path that is already stored.
	ErrDuplicatePath = errors.New("databin: duplicate path")

	// ErrUnnamedCollision is returned when a hash collision involves an entry
	// with no known path, which cannot be stored by name.
	ErrUnnamedCollision = errors.New("databin: hash collision with unnamed entry")

	// ErrNoEntry is returned when an entry id is out of range.
	ErrNoEntry = errors.New("databin: no such entry")
)

// FormatError reports a fatal violation of the container layout.
// errors.Is(err, ErrFormat) is true for every FormatError.
type FormatError struct {
	// Offset is the byte offset of the offending field.
	Offset int64

	// Err describes the violation.
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("databin: format violation at offset %#x: %v", e.Offset, e.Err)
}

// Unwrap returns both ErrFormat and the underlying cause.
func (e *FormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

func formatError(offset int64, err error) error {
	return &FormatError{Offset: offset, Err: err}
}

// EntryError reports a failure to parse one entry's typed record.
type EntryError struct {
	// Index is the entry id.
	Index int

	// Kind is the record kind the entry was classified as.
	Kind RecordKind

	// Err is the parse failure.
	Err error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("databin: reading %s record [entry %d]: %v", e.Kind, e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
