package dumpkit

import (
	"context"
	"io"
	"path"
	"sort"
)

// Source lists and opens the raw dump files of a simulation directory.
// Raw files are treated as read-only and stable for the duration of a run.
type Source interface {
	// List returns the names of the raw files holding dumps of kind k,
	// ordered the way they were written (see SortNames).
	List(ctx context.Context, k Kind) ([]string, error)

	// Open opens a file returned by List. Opening the same name again starts
	// over from the beginning of the file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// SchemaResolver maps the column-name line of a block header to the Schema
// of its epoch. A resolver holds the epoch state of one (kind, directory)
// pair and is called once per block, in file order.
//
// Resolving a line does not change the epoch state. A new epoch opens only
// when its schema is committed, which a parser does once the block carrying
// it has been read in full.
type SchemaResolver interface {
	// Resolve returns the schema for line, and whether committing it would
	// open a new epoch.
	Resolve(line string) (s *Schema, changed bool, err error)

	// Commit opens the epoch of s, which must be the result of the latest
	// Resolve call. Committing the current schema does nothing.
	Commit(s *Schema)

	// Current returns the schema of the most recent epoch, or nil.
	Current() *Schema
}

// SortNames orders raw file names so that numeric runs compare by value,
// which puts part.2.dat before part.10.dat. Only the base names are compared.
func SortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(path.Base(names[i]), path.Base(names[j]))
	})
}

func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		if isDigit(a[0]) && isDigit(b[0]) {
			na, ra := leadingDigits(a)
			nb, rb := leadingDigits(b)
			ta, tb := trimZeros(na), trimZeros(nb)
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}
