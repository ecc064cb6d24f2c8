package dumpkit

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is a constant error type.
type Error string

func (e Error) Error() string { return string(e) }

// ErrNotFound is returned by readers when a timestep is not in the catalog.
const ErrNotFound = Error("timestep not found")

// Location points at a position in a named input.
type Location struct {
	Name string
	// Line is 1-based. Zero means unknown.
	Line int64
	// Offset is the byte offset of the start of Line.
	Offset int64
}

func (l Location) String() string {
	if l.Line == 0 {
		return l.Name
	}
	return fmt.Sprintf("%s:%d (offset %d)", l.Name, l.Line, l.Offset)
}

// FormatError reports a block whose header or rows do not follow the dump
// format. The block is dropped and parsing resumes at the next header.
type FormatError struct {
	Loc      Location
	Timestep int64 // -1 when the timestep line was not read
	Msg      string
}

func (e *FormatError) Error() string {
	if e.Timestep >= 0 {
		return fmt.Sprintf("%s: format error in timestep %d: %s", e.Loc, e.Timestep, e.Msg)
	}
	return fmt.Sprintf("%s: format error: %s", e.Loc, e.Msg)
}

// TruncationError reports a block which ended before its declared row count
// was reached. This is what an interrupted solver run leaves behind, so it
// is a warning rather than a failure.
type TruncationError struct {
	Loc      Location
	Timestep int64 // -1 when the timestep line was not read

	// InHeader is set when the block ended before its header was complete,
	// in which case Want and Got are zero.
	InHeader bool
	Want     int
	Got      int
}

func (e *TruncationError) Error() string {
	if e.InHeader {
		return fmt.Sprintf("%s: timestep %d truncated inside its header", e.Loc, e.Timestep)
	}
	return fmt.Sprintf("%s: timestep %d truncated after %d of %d rows", e.Loc, e.Timestep, e.Got, e.Want)
}

// SchemaChangeWarning is returned together with a valid block whose column
// line differs from the previous block's, opening a new epoch.
type SchemaChangeWarning struct {
	Loc      Location
	Timestep int64
	From     *Schema
	To       *Schema
}

func (e *SchemaChangeWarning) Error() string {
	return fmt.Sprintf("%s: schema changed at timestep %d (epoch %d -> %d): [%s] -> [%s]",
		e.Loc, e.Timestep, e.From.Epoch, e.To.Epoch, e.From.Line, e.To.Line)
}

// WriteError reports a failure to persist a partition. It ends the
// conversion of the file being read, but not of its siblings.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Cause() error  { return e.Err }
func (e *WriteError) Unwrap() error { return e.Err }

// CatalogCorruption reports a manifest which cannot be trusted. Catalogs
// recover from it by rebuilding from the partitions on disk.
type CatalogCorruption struct {
	Path string
	Err  error
}

func (e *CatalogCorruption) Error() string {
	return fmt.Sprintf("corrupt catalog manifest %s: %v", e.Path, e.Err)
}

func (e *CatalogCorruption) Cause() error  { return e.Err }
func (e *CatalogCorruption) Unwrap() error { return e.Err }

// IsWarning reports whether err is one of the recoverable conditions which
// are logged as warnings.
func IsWarning(err error) bool {
	var te *TruncationError
	var sc *SchemaChangeWarning
	var cc *CatalogCorruption
	return errors.As(err, &te) || errors.As(err, &sc) || errors.As(err, &cc)
}
