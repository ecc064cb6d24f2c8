package dumpkit

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ColumnType is the storage type of one column.
type ColumnType uint8

const (
	Float64 ColumnType = iota
	Int64
	String
)

func (t ColumnType) String() string {
	switch t {
	case Int64:
		return "int64"
	case String:
		return "string"
	default:
		return "float64"
	}
}

// ParseColumnType is the inverse of ColumnType.String.
func ParseColumnType(s string) (ColumnType, bool) {
	switch s {
	case "float64":
		return Float64, true
	case "int64":
		return Int64, true
	case "string":
		return String, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(text []byte) error {
	ct, ok := ParseColumnType(string(text))
	if !ok {
		return errors.Errorf("unknown column type '%s'", text)
	}
	*t = ct
	return nil
}

// Column is one named, typed column of a Schema.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the ordered column layout shared by every block of one epoch.
// Schemas are created by a SchemaResolver and must not be modified.
type Schema struct {
	// Epoch numbers contiguous runs of blocks sharing a column line,
	// starting at 0 for a (kind, directory) pair.
	Epoch int

	// Line is the column-name line as written in the dump, after the rows
	// header keyword.
	Line string

	Columns []Column
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s *Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether s and o describe the same columns, ignoring epoch.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// Box is the simulation domain given by a BOX BOUNDS header.
type Box struct {
	Lo [3]float64 `json:"lo"`
	Hi [3]float64 `json:"hi"`

	// Flags holds the boundary flags which follow the BOX BOUNDS keyword,
	// e.g. ["oo", "oo", "pp"].
	Flags []string `json:"flags,omitempty"`
}

// Equal reports whether two boxes have the same bounds and flags.
func (b Box) Equal(o Box) bool {
	if b.Lo != o.Lo || b.Hi != o.Hi || len(b.Flags) != len(o.Flags) {
		return false
	}
	for i := range b.Flags {
		if b.Flags[i] != o.Flags[i] {
			return false
		}
	}
	return true
}

// Vector holds the values of one column. Exactly one of the slices is in
// use, chosen by the column's type.
type Vector struct {
	Ints    []int64
	Floats  []float64
	Strings []string
}

// NewVector returns an empty Vector for type t with room for n values.
func NewVector(t ColumnType, n int) Vector {
	switch t {
	case Int64:
		return Vector{Ints: make([]int64, 0, n)}
	case String:
		return Vector{Strings: make([]string, 0, n)}
	default:
		return Vector{Floats: make([]float64, 0, n)}
	}
}

// Len returns the number of values held.
func (v Vector) Len() int {
	switch {
	case v.Ints != nil:
		return len(v.Ints)
	case v.Strings != nil:
		return len(v.Strings)
	default:
		return len(v.Floats)
	}
}

// Block is one timestep of one dump kind: the header fields plus the rows,
// stored column by column.
type Block struct {
	Kind     Kind
	Timestep int64
	Schema   *Schema
	Box      Box

	// Rows is the number of rows, which equals the declared entity count.
	Rows int

	// Data holds one Vector per schema column.
	Data []Vector

	// Skipped is set by a parser which was told to skip this timestep. A
	// skipped block has a header but no Data.
	Skipped bool
}

// Epoch returns the schema epoch of the block.
func (b *Block) Epoch() int {
	if b.Schema == nil {
		return -1
	}
	return b.Schema.Epoch
}

// Row returns the values of row i as strings formatted the way the solver
// writes them. It is meant for display and tests, not bulk access.
func (b *Block) Row(i int) []string {
	row := make([]string, len(b.Data))
	for j, v := range b.Data {
		switch {
		case v.Ints != nil:
			row[j] = strconv.FormatInt(v.Ints[i], 10)
		case v.Strings != nil:
			row[j] = v.Strings[i]
		default:
			row[j] = strconv.FormatFloat(v.Floats[i], 'g', -1, 64)
		}
	}
	return row
}

// Project returns a copy of the block holding only the named columns, in the
// order given. The returned block shares column data with b.
func (b *Block) Project(names ...string) (*Block, error) {
	if len(names) == 0 {
		return b, nil
	}
	s := &Schema{Epoch: b.Schema.Epoch, Columns: make([]Column, 0, len(names))}
	out := &Block{
		Kind:     b.Kind,
		Timestep: b.Timestep,
		Schema:   s,
		Box:      b.Box,
		Rows:     b.Rows,
		Data:     make([]Vector, 0, len(names)),
	}
	for _, name := range names {
		i := b.Schema.Index(name)
		if i < 0 {
			return nil, errors.Errorf("no column '%s' in %s timestep %d", name, b.Kind, b.Timestep)
		}
		s.Columns = append(s.Columns, b.Schema.Columns[i])
		if i < len(b.Data) {
			out.Data = append(out.Data, b.Data[i])
		}
	}
	s.Line = strings.Join(names, " ")
	return out, nil
}
