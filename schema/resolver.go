// Package schema tracks the column layout of dump blocks and the epochs in
// which each layout holds.
package schema

import (
	"strings"

	"github.com/ampt/dumpkit"
	"github.com/pkg/errors"
)

var _ dumpkit.SchemaResolver = &Resolver{}

// Resolver holds the epoch state for one (kind, directory) pair. It is not
// safe for concurrent use; blocks of one kind are resolved in file order.
type Resolver struct {
	kind    dumpkit.Kind
	current *dumpkit.Schema
	epochs  []*dumpkit.Schema
}

// NewResolver returns a Resolver for dumps of kind k with no epochs.
func NewResolver(k dumpkit.Kind) *Resolver {
	return &Resolver{kind: k}
}

// Resolve implements dumpkit.SchemaResolver. A line identical to the current
// epoch's returns the cached schema. Any other line yields a candidate for
// the next epoch, even if an older epoch had the same columns, since an
// epoch is a contiguous run of blocks. The candidate is not recorded until
// it is committed.
func (r *Resolver) Resolve(line string) (*dumpkit.Schema, bool, error) {
	if r.current != nil && r.current.Line == line {
		return r.current, false, nil
	}
	names := strings.Fields(line)
	if len(names) == 0 {
		return nil, false, errors.New("no columns")
	}
	s := &dumpkit.Schema{
		Epoch:   len(r.epochs),
		Line:    line,
		Columns: make([]dumpkit.Column, len(names)),
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if seen[name] {
			return nil, false, errors.Errorf("duplicate column '%s'", name)
		}
		seen[name] = true
		s.Columns[i] = dumpkit.Column{Name: name, Type: TypeOf(r.kind, name)}
	}
	// A line which differs only in spacing is the same epoch.
	if r.current != nil && r.current.Equal(s) {
		return r.current, false, nil
	}
	return s, true, nil
}

// Commit implements dumpkit.SchemaResolver.
func (r *Resolver) Commit(s *dumpkit.Schema) {
	if s == nil || s == r.current {
		return
	}
	r.current = s
	r.epochs = append(r.epochs, s)
}

// Current returns the schema of the current epoch, or nil before the first
// block.
func (r *Resolver) Current() *dumpkit.Schema {
	return r.current
}

// Epochs returns every epoch opened so far, oldest first.
func (r *Resolver) Epochs() []*dumpkit.Schema {
	return r.epochs
}

// TypeOf returns the storage type of a column. Identifier columns are
// integers, idstr is the string form of a grid cell id, and everything else
// is a floating point quantity.
func TypeOf(k dumpkit.Kind, name string) dumpkit.ColumnType {
	switch name {
	case "id", "type", "proc":
		return dumpkit.Int64
	case "idstr":
		return dumpkit.String
	case "split":
		if k == dumpkit.Grid || k == dumpkit.Flow {
			return dumpkit.Int64
		}
	}
	return dumpkit.Float64
}
