package dump_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/dump"
	"github.com/ampt/dumpkit/schema"
	"github.com/ampt/dumpkit/test"
	"github.com/pkg/errors"
)

var cols = []string{"id", "type", "x", "y", "z"}

// event is one result of Parser.Next, reduced to what the tests check.
type event struct {
	step int64 // -1 for dropped blocks
	rows int
	kind string // "", "format", "truncation", "schema"
}

func collect(t *testing.T, p *dump.Parser) []event {
	t.Helper()
	var evs []event
	for i := 0; ; i++ {
		if i > 1000 {
			t.Fatalf("parser does not terminate")
		}
		blk, err := p.Next()
		if err == io.EOF {
			return evs
		}
		ev := event{step: -1}
		if blk != nil {
			ev.step = blk.Timestep
			ev.rows = blk.Rows
		}
		switch err.(type) {
		case nil:
		case *dumpkit.FormatError:
			ev.kind = "format"
		case *dumpkit.TruncationError:
			ev.kind = "truncation"
		case *dumpkit.SchemaChangeWarning:
			ev.kind = "schema"
		default:
			t.Fatalf("unexpected error: %v", err)
		}
		evs = append(evs, ev)
	}
}

func parse(text string, opts ...dump.ParserOption) *dump.Parser {
	return dump.NewParser(strings.NewReader(text), dumpkit.Particle, schema.NewResolver(dumpkit.Particle), opts...)
}

func TestParse(t *testing.T) {
	two := test.Dump(dumpkit.Particle, test.Seq(0, 2, cols...), test.Seq(10, 3, cols...))
	truncated := test.Seq(20, 2, cols...)
	truncated.Declared = 5
	badRow := test.Seq(10, 3, cols...)
	badRow.Rows[1] = []string{"2", "1", "0.1"}
	extra := test.Seq(10, 3, cols...)
	extra.Rows[0] = append(extra.Rows[0], "7")

	tests := []struct {
		name string
		text string
		want []event
	}{
		{
			name: "empty",
			text: "",
		},
		{
			name: "blank lines only",
			text: "\n\n  \n",
		},
		{
			name: "two blocks",
			text: two,
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}},
		},
		{
			name: "crlf",
			text: strings.ReplaceAll(two, "\n", "\r\n"),
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}},
		},
		{
			name: "no final newline",
			text: strings.TrimSuffix(two, "\n"),
			want: []event{{step: 0, rows: 2}, {kind: "truncation", step: -1}},
		},
		{
			name: "cut row still parses",
			text: two + test.Dump(dumpkit.Particle, test.BlockSpec{
				Step:     20,
				Columns:  cols,
				Rows:     [][]string{{"1", "1", "10.25", "10.251", "10.252"}},
				Declared: 2,
			}) + "2 2 10.252 10.253 10.",
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}, {kind: "truncation", step: -1}},
		},
		{
			name: "zero rows",
			text: test.Dump(dumpkit.Particle, test.BlockSpec{Step: 5, Columns: cols}),
			want: []event{{step: 5, rows: 0}},
		},
		{
			name: "truncated in rows",
			text: two + test.Dump(dumpkit.Particle, truncated),
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}, {kind: "truncation", step: -1}},
		},
		{
			name: "truncated in header",
			text: two + "ITEM: TIMESTEP\n20\nITEM: NUMBER OF ATOMS\n",
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}, {kind: "truncation", step: -1}},
		},
		{
			name: "truncated mid row",
			text: two + test.Dump(dumpkit.Particle, test.BlockSpec{
				Step:     20,
				Columns:  cols,
				Rows:     [][]string{{"1", "1", "0.1", "0.2", "0.3"}},
				Declared: 2,
			}) + "2 1 0.2",
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}, {kind: "truncation", step: -1}},
		},
		{
			name: "truncated then restart",
			text: test.Dump(dumpkit.Particle, test.Seq(10, 1, cols...), test.BlockSpec{Step: 20, Columns: cols, Declared: 4}) +
				test.Dump(dumpkit.Particle, test.Seq(20, 4, cols...)),
			want: []event{{step: 10, rows: 1}, {kind: "truncation", step: -1}, {step: 20, rows: 4}},
		},
		{
			name: "short row",
			text: test.Dump(dumpkit.Particle, test.Seq(0, 2, cols...), badRow, test.Seq(20, 1, cols...)),
			want: []event{{step: 0, rows: 2}, {kind: "format", step: -1}, {step: 20, rows: 1}},
		},
		{
			name: "long row",
			text: test.Dump(dumpkit.Particle, extra, test.Seq(20, 1, cols...)),
			want: []event{{kind: "format", step: -1}, {step: 20, rows: 1}},
		},
		{
			name: "too many rows",
			text: strings.Replace(two, "ITEM: NUMBER OF ATOMS\n3\n", "ITEM: NUMBER OF ATOMS\n2\n", 1),
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 2}, {kind: "format", step: -1}},
		},
		{
			name: "leading junk",
			text: "LAMMPS-ish preamble\nmore preamble\n" + two,
			want: []event{{kind: "format", step: -1}, {step: 0, rows: 2}, {step: 10, rows: 3}},
		},
		{
			name: "bad timestep",
			text: "ITEM: TIMESTEP\nten\n" + two,
			want: []event{{kind: "format", step: -1}, {step: 0, rows: 2}, {step: 10, rows: 3}},
		},
		{
			name: "timestep goes backwards",
			text: two + test.Dump(dumpkit.Particle, test.Seq(5, 1, cols...), test.Seq(30, 1, cols...)),
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}, {kind: "format", step: -1}, {step: 30, rows: 1}},
		},
		{
			name: "repeated timestep",
			text: two + test.Dump(dumpkit.Particle, test.Seq(10, 1, cols...)),
			want: []event{{step: 0, rows: 2}, {step: 10, rows: 3}, {kind: "format", step: -1}},
		},
		{
			name: "wrong count header",
			text: strings.Replace(two, "NUMBER OF ATOMS", "NUMBER OF CELLS", 1),
			want: []event{{kind: "format", step: -1}, {step: 10, rows: 3}},
		},
		{
			name: "bad bounds",
			text: strings.Replace(two, "-0.5 0.5\n", "-0.5\n", 1),
			want: []event{{kind: "format", step: -1}, {step: 10, rows: 3}},
		},
		{
			name: "duplicate column",
			text: test.Dump(dumpkit.Particle, test.Seq(0, 1, "id", "x", "x"), test.Seq(10, 1, cols...)),
			want: []event{{kind: "format", step: -1}, {step: 10, rows: 1}},
		},
		{
			name: "schema change",
			text: test.Dump(dumpkit.Particle, test.Seq(0, 1, cols...), test.Seq(10, 1, "id", "x"), test.Seq(20, 1, "id", "x")),
			want: []event{{step: 0, rows: 1}, {kind: "schema", step: 10, rows: 1}, {step: 20, rows: 1}},
		},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			got := collect(t, parse(tst.text))
			test.MustBe(t, tst.want, got)
		})
	}
}

func TestParseValues(t *testing.T) {
	text := test.Dump(dumpkit.Particle, test.BlockSpec{
		Step:    42,
		Columns: []string{"id", "type", "x", "vx"},
		Rows: [][]string{
			{"7", "2", "1.5e-3", "-12"},
			{"8", "1.0", "2", "3.25"},
		},
	})
	p := parse(text, dump.OptName("part.1.dat"))
	blk, err := p.Next()
	test.ErrNil(t, err, "Next")

	test.MustBe(t, dumpkit.Particle, blk.Kind)
	test.MustBe(t, int64(42), blk.Timestep)
	test.MustBe(t, 2, blk.Rows)
	test.MustBe(t, 0, blk.Epoch())
	test.MustBe(t, dumpkit.Box{Lo: [3]float64{0, -0.5, 0}, Hi: [3]float64{1, 0.5, 2}, Flags: []string{"oo", "oo", "pp"}}, blk.Box)
	test.MustBe(t, []dumpkit.Column{
		{Name: "id", Type: dumpkit.Int64},
		{Name: "type", Type: dumpkit.Int64},
		{Name: "x", Type: dumpkit.Float64},
		{Name: "vx", Type: dumpkit.Float64},
	}, blk.Schema.Columns)
	test.MustBe(t, []int64{7, 8}, blk.Data[0].Ints)
	test.MustBe(t, []int64{2, 1}, blk.Data[1].Ints)
	test.MustBe(t, []float64{1.5e-3, 2}, blk.Data[2].Floats)
	test.MustBe(t, []float64{-12, 3.25}, blk.Data[3].Floats)
	test.MustBe(t, []string{"8", "1", "2", "3.25"}, blk.Row(1))

	if _, err := p.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if _, err := p.Next(); err != io.EOF {
		t.Fatalf("expected EOF to repeat, got %v", err)
	}
}

func TestGridKinds(t *testing.T) {
	text := test.Dump(dumpkit.Grid, test.BlockSpec{
		Step:    3,
		Columns: []string{"id", "idstr", "split", "nrho"},
		Rows:    [][]string{{"1", "1", "0", "1e20"}, {"9", "3-2-1", "1", "0"}},
	})
	res := schema.NewResolver(dumpkit.Grid)
	blk, err := dump.NewParser(strings.NewReader(text), dumpkit.Grid, res).Next()
	test.ErrNil(t, err, "Next")
	test.MustBe(t, []string{"1", "3-2-1"}, blk.Data[1].Strings)
	test.MustBe(t, []int64{0, 1}, blk.Data[2].Ints)

	// Grid headers are not particle headers.
	_, err = dump.NewParser(strings.NewReader(text), dumpkit.Particle, schema.NewResolver(dumpkit.Particle)).Next()
	if _, ok := err.(*dumpkit.FormatError); !ok {
		t.Fatalf("expected format error parsing grid dump as particles, got %v", err)
	}

	surf := test.Dump(dumpkit.Surf, test.Seq(1, 2, "id", "type", "f"))
	blk, err = dump.NewParser(strings.NewReader(surf), dumpkit.Surf, schema.NewResolver(dumpkit.Surf)).Next()
	test.ErrNil(t, err, "Next surf")
	test.MustBe(t, 2, blk.Rows)
}

func TestErrorLocations(t *testing.T) {
	bad := test.Seq(10, 3, cols...)
	bad.Rows[2][3] = "nan?"
	text := test.Dump(dumpkit.Particle, test.Seq(0, 1, cols...), bad)
	p := parse(text, dump.OptName("part.7.dat"))
	_, err := p.Next()
	test.ErrNil(t, err, "Next")
	_, err = p.Next()
	fe, ok := err.(*dumpkit.FormatError)
	if !ok {
		t.Fatalf("expected format error, got %v", err)
	}
	// Block 0 takes 10 lines and the bad row is the last line of block 10.
	test.MustBe(t, dumpkit.Location{Name: "part.7.dat", Line: 22, Offset: int64(strings.Index(text, "3 3 "))}, fe.Loc)
	test.MustBe(t, int64(10), fe.Timestep)
	if !strings.HasPrefix(fe.Error(), "part.7.dat:22 ") {
		t.Fatalf("error does not start with its location: %v", fe)
	}

	trunc := test.Seq(20, 1, cols...)
	trunc.Declared = 2
	p = parse(test.Dump(dumpkit.Particle, test.Seq(0, 1, cols...), trunc), dump.OptName("part.8.dat"))
	_, _ = p.Next()
	_, err = p.Next()
	te, ok := err.(*dumpkit.TruncationError)
	if !ok {
		t.Fatalf("expected truncation, got %v", err)
	}
	test.MustBe(t, dumpkit.TruncationError{
		Loc:      dumpkit.Location{Name: "part.8.dat", Line: 11, Offset: int64(len(test.Dump(dumpkit.Particle, test.Seq(0, 1, cols...))))},
		Timestep: 20,
		Want:     2,
		Got:      1,
	}, *te)
	if !dumpkit.IsWarning(errors.Wrap(te, "converting")) {
		t.Fatalf("truncation should be a warning")
	}
}

func TestSkip(t *testing.T) {
	text := test.Dump(dumpkit.Particle,
		test.Seq(0, 3, cols...),
		test.Seq(10, 3, cols...),
		test.Seq(20, 3, "id", "x"),
	)
	res := schema.NewResolver(dumpkit.Particle)
	skip := func(step int64) bool { return step != 10 }
	p := dump.NewParser(strings.NewReader(text), dumpkit.Particle, res, dump.OptSkip(skip))

	blk, err := p.Next()
	test.ErrNil(t, err, "Next")
	test.MustBe(t, true, blk.Skipped)
	test.MustBe(t, 3, blk.Rows)
	if blk.Data != nil {
		t.Fatalf("skipped block has data")
	}

	blk, err = p.Next()
	test.ErrNil(t, err, "Next")
	test.MustBe(t, false, blk.Skipped)
	test.MustBe(t, 3, len(blk.Data[0].Ints))

	// Skipped blocks still open epochs.
	blk, err = p.Next()
	if _, ok := err.(*dumpkit.SchemaChangeWarning); !ok {
		t.Fatalf("expected schema change, got %v", err)
	}
	test.MustBe(t, true, blk.Skipped)
	test.MustBe(t, 1, blk.Epoch())
	test.MustBe(t, 2, len(res.Epochs()))
}

func TestSkipDoesNotDecode(t *testing.T) {
	bad := test.Seq(0, 2, cols...)
	bad.Rows[0][2] = "garbage"
	p := parse(test.Dump(dumpkit.Particle, bad), dump.OptSkip(func(int64) bool { return true }))
	blk, err := p.Next()
	test.ErrNil(t, err, "Next")
	test.MustBe(t, true, blk.Skipped)
}

func TestSmallBuffer(t *testing.T) {
	long := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		long = append(long, "c"+strings.Repeat("x", i%7)+string(rune('a'+i%26))+strings.Repeat("0", i/26))
	}
	long[0] = "id"
	spec := test.Seq(1, 5, long...)
	text := test.Dump(dumpkit.Particle, spec, test.Seq(2, 5, long...))

	for _, r := range []io.Reader{strings.NewReader(text), iotest.OneByteReader(strings.NewReader(text)), iotest.HalfReader(strings.NewReader(text))} {
		p := dump.NewParser(r, dumpkit.Particle, schema.NewResolver(dumpkit.Particle), dump.OptBufferSize(16))
		got := collect(t, p)
		test.MustBe(t, []event{{step: 1, rows: 5}, {step: 2, rows: 5}}, got)
	}
}

func TestSharedResolver(t *testing.T) {
	res := schema.NewResolver(dumpkit.Particle)
	first := test.Dump(dumpkit.Particle, test.Seq(0, 1, cols...))
	second := test.Dump(dumpkit.Particle, test.Seq(10, 1, "id", "x"))

	got := collect(t, dump.NewParser(strings.NewReader(first), dumpkit.Particle, res))
	test.MustBe(t, []event{{step: 0, rows: 1}}, got)
	// A change at the start of the next file is still reported.
	got = collect(t, dump.NewParser(strings.NewReader(second), dumpkit.Particle, res))
	test.MustBe(t, []event{{kind: "schema", step: 10, rows: 1}}, got)
}

func TestDroppedBlockEpochs(t *testing.T) {
	badRow := test.Seq(20, 2, "id", "x", "y")
	badRow.Rows[1] = []string{"2", "oops", "1"}
	cut := test.Seq(20, 1, "id", "x", "y")
	cut.Declared = 3

	tests := []struct {
		name   string
		text   string
		want   []event
		epoch  int // epoch of timestep 30
		epochs int
	}{
		{
			name:   "bad block between equal schemas",
			text:   test.Dump(dumpkit.Particle, test.Seq(10, 1, "id", "x"), badRow, test.Seq(30, 1, "id", "x")),
			want:   []event{{step: 10, rows: 1}, {kind: "format", step: -1}, {step: 30, rows: 1}},
			epoch:  0,
			epochs: 1,
		},
		{
			name:   "truncated block between equal schemas",
			text:   test.Dump(dumpkit.Particle, test.Seq(10, 1, "id", "x"), cut, test.Seq(30, 1, "id", "x")),
			want:   []event{{step: 10, rows: 1}, {kind: "truncation", step: -1}, {step: 30, rows: 1}},
			epoch:  0,
			epochs: 1,
		},
		{
			name:   "first block of new schema is bad",
			text:   test.Dump(dumpkit.Particle, test.Seq(10, 1, "id", "x"), badRow, test.Seq(30, 1, "id", "x", "y")),
			want:   []event{{step: 10, rows: 1}, {kind: "format", step: -1}, {kind: "schema", step: 30, rows: 1}},
			epoch:  1,
			epochs: 2,
		},
		{
			name:   "first block of new schema is truncated",
			text:   test.Dump(dumpkit.Particle, test.Seq(10, 1, "id", "x"), cut, test.Seq(30, 1, "id", "x", "y")),
			want:   []event{{step: 10, rows: 1}, {kind: "truncation", step: -1}, {kind: "schema", step: 30, rows: 1}},
			epoch:  1,
			epochs: 2,
		},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			res := schema.NewResolver(dumpkit.Particle)
			p := dump.NewParser(strings.NewReader(tst.text), dumpkit.Particle, res)
			var got []event
			var last *dumpkit.Block
			for {
				blk, err := p.Next()
				if err == io.EOF {
					break
				}
				ev := event{step: -1}
				if blk != nil {
					ev.step, ev.rows = blk.Timestep, blk.Rows
					last = blk
				}
				switch err.(type) {
				case *dumpkit.FormatError:
					ev.kind = "format"
				case *dumpkit.TruncationError:
					ev.kind = "truncation"
				case *dumpkit.SchemaChangeWarning:
					ev.kind = "schema"
				}
				got = append(got, ev)
			}
			test.MustBe(t, tst.want, got)
			test.MustBe(t, int64(30), last.Timestep)
			test.MustBe(t, tst.epoch, last.Epoch())
			test.MustBe(t, tst.epochs, len(res.Epochs()))
		})
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, errors.New("disk on fire")
	}
	text := test.Dump(dumpkit.Particle, test.Seq(0, 1, cols...))
	r.n = 0
	return copy(p, text), nil
}

func TestReadError(t *testing.T) {
	p := dump.NewParser(&failingReader{n: 1}, dumpkit.Particle, schema.NewResolver(dumpkit.Particle))
	_, err := p.Next()
	test.ErrNil(t, err, "first block")
	_, err = p.Next()
	if err == nil || err == io.EOF || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("expected read error, got %v", err)
	}
	_, again := p.Next()
	test.MustBe(t, err, again)
}

func TestFileReset(t *testing.T) {
	text := test.Dump(dumpkit.Particle, test.Seq(0, 2, cols...), test.Seq(10, 2, "id", "x"))
	path := filepath.Join(t.TempDir(), "part.1.dat")
	test.ErrNil(t, os.WriteFile(path, []byte(text), 0644), "writing dump")

	f, err := dump.Open(path, dumpkit.Particle, schema.NewResolver(dumpkit.Particle))
	test.ErrNil(t, err, "Open")
	defer f.Close()
	first := collect(t, f.Parser)
	test.ErrNil(t, f.Reset(schema.NewResolver(dumpkit.Particle)), "Reset")
	second := collect(t, f.Parser)
	test.MustBe(t, first, second)
	test.MustBe(t, []event{{step: 0, rows: 2}, {kind: "schema", step: 10, rows: 2}}, first)

	if _, err := dump.Open(filepath.Join(t.TempDir(), "missing.dat"), dumpkit.Particle, schema.NewResolver(dumpkit.Particle)); err == nil {
		t.Fatalf("expected error opening missing file")
	}
}
