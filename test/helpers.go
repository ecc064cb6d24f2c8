package test

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/ampt/dumpkit"
)

// MustBe uses reflect.DeepEqual to assert that thing1 and thing2 are equal, and
// fails otherwise.
func MustBe(t *testing.T, thing1, thing2 interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) == 0 {
		ctx = ""
	} else {
		ctx = context[0] + ": "
	}
	if !reflect.DeepEqual(thing1, thing2) {
		t.Fatalf("%v'%#v' != '%#v'", ctx, thing1, thing2)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t *testing.T, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// BlockSpec describes one block of a generated dump.
type BlockSpec struct {
	Step    int64
	Columns []string
	Rows    [][]string

	// Declared is the entity count written in the header. Zero means
	// len(Rows); a larger value makes a truncated block.
	Declared int
}

// DefaultBox is the BOX BOUNDS section written by Dump.
const DefaultBox = "ITEM: BOX BOUNDS oo oo pp\n0 1\n-0.5 0.5\n0 2\n"

// Dump renders blocks of kind k in dump format.
func Dump(k dumpkit.Kind, blocks ...BlockSpec) string {
	var b strings.Builder
	for _, blk := range blocks {
		declared := blk.Declared
		if declared == 0 {
			declared = len(blk.Rows)
		}
		fmt.Fprintf(&b, "%s\n%d\n", dumpkit.TimestepHeader, blk.Step)
		fmt.Fprintf(&b, "%s\n%d\n", k.CountHeader(), declared)
		b.WriteString(DefaultBox)
		fmt.Fprintf(&b, "%s %s\n", k.RowsHeader(), strings.Join(blk.Columns, " "))
		for _, row := range blk.Rows {
			b.WriteString(strings.Join(row, " "))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Seq returns a block of n generated rows. Integer columns (id, type, proc)
// count up from 1; every other column gets a float derived from the
// timestep, row and column position, so distinct timesteps have distinct
// contents.
func Seq(step int64, n int, columns ...string) BlockSpec {
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(columns))
		for j, c := range columns {
			switch c {
			case "id", "type", "proc":
				row[j] = strconv.Itoa(i + 1)
			default:
				v := float64(step) + float64(i)*0.25 + float64(j)*0.001
				row[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		rows[i] = row
	}
	return BlockSpec{Step: step, Columns: columns, Rows: rows}
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("making dir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}
