// Package dump parses the text dump files written by the SPARTA solver.
//
// A dump file is a sequence of timestep blocks. Each block is a fixed header
// followed by one line per entity:
//
//	ITEM: TIMESTEP
//	1000
//	ITEM: NUMBER OF ATOMS
//	2
//	ITEM: BOX BOUNDS oo oo pp
//	-0.5 0.5
//	-0.5 0.5
//	0 1
//	ITEM: ATOMS id type x y z
//	1 1 0.1 0.2 0.3
//	2 1 0.2 0.3 0.4
//
// The count and rows keywords depend on the dump kind (ATOMS, CELLS or
// SURFS). A Parser yields one block at a time and never holds more than the
// rows of the block being read.
package dump

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/ampt/dumpkit"
	"github.com/pkg/errors"
)

const (
	defaultBufSize = 1 << 16

	// maxPrealloc caps how many rows are allocated up front from a declared
	// count, so that a corrupt count line cannot force a huge allocation.
	maxPrealloc = 1 << 16
)

type state int

const (
	seekHeader state = iota
	readCount
	readBounds
	readColumnNames
	readRows
	emitBlock
)

func (s state) String() string {
	switch s {
	case seekHeader:
		return "SeekHeader"
	case readCount:
		return "ReadCount"
	case readBounds:
		return "ReadBounds"
	case readColumnNames:
		return "ReadColumnNames"
	case readRows:
		return "ReadRows"
	default:
		return "EmitBlock"
	}
}

// ParserOption is a functional option for Parser.
type ParserOption func(p *Parser)

// OptName sets the name used in error locations.
func OptName(name string) ParserOption {
	return func(p *Parser) {
		p.name = name
	}
}

// OptSkip sets a predicate which is consulted after each block header. When
// it returns true the block's rows are read past without being decoded, and
// the block is returned with Skipped set and no Data. The header is still
// resolved, so schema epochs are assigned exactly as if the rows were read.
func OptSkip(skip func(step int64) bool) ParserOption {
	return func(p *Parser) {
		p.skip = skip
	}
}

// OptBufferSize sets the size of the read buffer. Lines longer than the
// buffer are still read correctly.
func OptBufferSize(n int) ParserOption {
	return func(p *Parser) {
		p.bufSize = n
	}
}

// Parser reads timestep blocks of one kind from a dump file.
type Parser struct {
	kind dumpkit.Kind
	res  dumpkit.SchemaResolver
	lr   *lineReader

	name    string
	skip    func(step int64) bool
	bufSize int

	state  state
	block  *dumpkit.Block
	want   int
	start  dumpkit.Location // location of the TIMESTEP line of block

	lastStep int64 // timestep of the last emitted block, -1 if none
	junk     bool  // inside a run of lines already reported or being dropped

	// open is the epoch block would open. It is committed when block is
	// emitted.
	open   *dumpkit.Schema
	change *dumpkit.SchemaChangeWarning
	err    error
}

// NewParser returns a Parser reading blocks of kind k from r. Column lines
// are resolved through res, whose epoch state carries over between parsers
// that share it.
func NewParser(r io.Reader, k dumpkit.Kind, res dumpkit.SchemaResolver, opts ...ParserOption) *Parser {
	p := &Parser{
		kind:     k,
		res:      res,
		name:     string(k),
		bufSize:  defaultBufSize,
		lastStep: -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lr = newLineReader(r, p.bufSize)
	return p
}

// Next returns the next block. At the end of the input it returns io.EOF.
//
// A *dumpkit.FormatError or *dumpkit.TruncationError is returned with a nil
// block when a block had to be dropped; a *dumpkit.SchemaChangeWarning is
// returned together with the first block of a new epoch. In all three cases
// the caller may keep calling Next. Any other error is final.
func (p *Parser) Next() (*dumpkit.Block, error) {
	if p.err != nil {
		return nil, p.err
	}
	for {
		var err error
		switch p.state {
		case seekHeader:
			err = p.seekHeader()
		case readCount:
			err = p.readCount()
		case readBounds:
			err = p.readBounds()
		case readColumnNames:
			err = p.readColumnNames()
		case readRows:
			err = p.readRows()
		case emitBlock:
			blk := p.block
			p.block = nil
			p.state = seekHeader
			p.lastStep = blk.Timestep
			if p.open != nil {
				p.res.Commit(p.open)
				p.open = nil
			}
			if p.change != nil {
				change := p.change
				p.change = nil
				return blk, change
			}
			return blk, nil
		}
		if err != nil {
			return nil, p.fail(err)
		}
	}
}

// fail resets the state machine after err. Errors other than format and
// truncation errors stop the parser.
func (p *Parser) fail(err error) error {
	stateName := p.state.String()
	p.block = nil
	p.open = nil
	p.change = nil
	p.state = seekHeader
	switch err.(type) {
	case *dumpkit.FormatError:
		p.junk = true
		return err
	case *dumpkit.TruncationError:
		// A truncated block is normally followed by a solver restart, which
		// may repeat earlier timesteps.
		p.lastStep = -1
		return err
	}
	if err == io.EOF {
		p.err = io.EOF
		return io.EOF
	}
	p.err = errors.Wrapf(err, "reading %s in state %s", p.name, stateName)
	return p.err
}

// Location returns the position of the line most recently read.
func (p *Parser) Location() dumpkit.Location {
	return dumpkit.Location{Name: p.name, Line: p.lr.line, Offset: p.lr.offset}
}

func (p *Parser) formatErr(step int64, format string, args ...interface{}) error {
	return &dumpkit.FormatError{
		Loc:      p.Location(),
		Timestep: step,
		Msg:      fmt.Sprintf(format, args...),
	}
}

func (p *Parser) truncated(inHeader bool) error {
	step := int64(-1)
	got := 0
	if p.block != nil {
		step = p.block.Timestep
		got = p.block.Rows
	}
	te := &dumpkit.TruncationError{
		Loc:      p.start,
		Timestep: step,
		InHeader: inHeader,
	}
	if !inHeader {
		te.Want, te.Got = p.want, got
	}
	return te
}

// headerLine reads the next line of a block header. A missing line or the
// start of another header means the block was cut short.
func (p *Parser) headerLine() ([]byte, error) {
	line, err := p.lr.readLine()
	if err == io.EOF {
		return nil, p.truncated(true)
	} else if err != nil {
		return nil, err
	}
	line = bytes.TrimSpace(line)
	if bytes.HasPrefix(line, []byte(dumpkit.TimestepHeader)) {
		p.lr.unread()
		return nil, p.truncated(true)
	}
	return line, nil
}

func (p *Parser) seekHeader() error {
	for {
		line, err := p.lr.readLine()
		if err != nil {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !bytes.Equal(line, []byte(dumpkit.TimestepHeader)) {
			if p.junk {
				continue
			}
			p.junk = true
			return p.formatErr(-1, "expected %q, got %q", dumpkit.TimestepHeader, clip(line))
		}
		p.junk = false
		p.start = p.Location()
		break
	}

	line, err := p.headerLine()
	if err != nil {
		return err
	}
	step, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return p.formatErr(-1, "bad timestep %q", clip(line))
	}
	if step < 0 {
		return p.formatErr(step, "negative timestep")
	}
	if p.lastStep >= 0 && step <= p.lastStep {
		return p.formatErr(step, "timestep does not follow %d", p.lastStep)
	}
	p.block = &dumpkit.Block{Kind: p.kind, Timestep: step}
	p.state = readCount
	return nil
}

func (p *Parser) readCount() error {
	step := p.block.Timestep
	line, err := p.headerLine()
	if err != nil {
		return err
	}
	if want := p.kind.CountHeader(); string(line) != want {
		return p.formatErr(step, "expected %q, got %q", want, clip(line))
	}
	line, err = p.headerLine()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(string(line))
	if err != nil || n < 0 {
		return p.formatErr(step, "bad entity count %q", clip(line))
	}
	p.want = n
	p.state = readBounds
	return nil
}

func (p *Parser) readBounds() error {
	step := p.block.Timestep
	line, err := p.headerLine()
	if err != nil {
		return err
	}
	if !hasKeyword(line, dumpkit.BoxHeader) {
		return p.formatErr(step, "expected %q, got %q", dumpkit.BoxHeader, clip(line))
	}
	var box dumpkit.Box
	rest := line[len(dumpkit.BoxHeader):]
	for i := 0; ; {
		var f []byte
		f, i = nextField(rest, i)
		if len(f) == 0 {
			break
		}
		box.Flags = append(box.Flags, string(f))
	}
	for axis := 0; axis < 3; axis++ {
		line, err := p.headerLine()
		if err != nil {
			return err
		}
		lo, i := nextField(line, 0)
		hi, i := nextField(line, i)
		extra, _ := nextField(line, i)
		if len(hi) == 0 || len(extra) != 0 {
			return p.formatErr(step, "bad box bounds %q", clip(line))
		}
		if box.Lo[axis], err = strconv.ParseFloat(string(lo), 64); err != nil {
			return p.formatErr(step, "bad box bound %q", clip(lo))
		}
		if box.Hi[axis], err = strconv.ParseFloat(string(hi), 64); err != nil {
			return p.formatErr(step, "bad box bound %q", clip(hi))
		}
	}
	p.block.Box = box
	p.state = readColumnNames
	return nil
}

func (p *Parser) readColumnNames() error {
	step := p.block.Timestep
	line, err := p.headerLine()
	if err != nil {
		return err
	}
	want := p.kind.RowsHeader()
	if !hasKeyword(line, want) {
		return p.formatErr(step, "expected %q, got %q", want, clip(line))
	}
	cols := string(bytes.TrimSpace(line[len(want):]))
	prev := p.res.Current()
	s, changed, err := p.res.Resolve(cols)
	if err != nil {
		return p.formatErr(step, "resolving columns: %v", err)
	}
	if changed {
		p.open = s
		if prev != nil {
			p.change = &dumpkit.SchemaChangeWarning{
				Loc:      p.Location(),
				Timestep: step,
				From:     prev,
				To:       s,
			}
		}
	}
	p.block.Schema = s
	p.state = readRows
	return nil
}

func (p *Parser) readRows() error {
	blk := p.block
	if p.skip != nil && p.skip(blk.Timestep) {
		blk.Skipped = true
		for blk.Rows < p.want {
			if err := p.rowLine(nil); err != nil {
				return err
			}
		}
		p.state = emitBlock
		return nil
	}
	prealloc := p.want
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	blk.Data = make([]dumpkit.Vector, len(blk.Schema.Columns))
	for i, c := range blk.Schema.Columns {
		blk.Data[i] = dumpkit.NewVector(c.Type, prealloc)
	}
	for blk.Rows < p.want {
		if err := p.rowLine(blk.Data); err != nil {
			return err
		}
	}
	p.state = emitBlock
	return nil
}

// rowLine reads one row into data. A nil data only checks that the row is
// present.
func (p *Parser) rowLine(data []dumpkit.Vector) error {
	blk := p.block
	line, err := p.lr.readLine()
	if err == io.EOF {
		return p.truncated(false)
	} else if err != nil {
		return err
	}
	if bytes.HasPrefix(bytes.TrimSpace(line), []byte(dumpkit.HeaderPrefix)) {
		p.lr.unread()
		return p.truncated(false)
	}
	if p.lr.partial {
		// Every row ends in a newline, so the writer was cut off in the
		// middle of this one, even if what is left still parses.
		return p.truncated(false)
	}
	if data != nil {
		if err := parseRow(line, blk.Schema, data); err != nil {
			return p.formatErr(blk.Timestep, "row %d: %v", blk.Rows+1, err)
		}
	}
	blk.Rows++
	return nil
}

func parseRow(line []byte, s *dumpkit.Schema, data []dumpkit.Vector) error {
	i := 0
	for c, col := range s.Columns {
		var f []byte
		f, i = nextField(line, i)
		if len(f) == 0 {
			return errors.Errorf("%d values, want %d", c, len(s.Columns))
		}
		v := &data[c]
		switch col.Type {
		case dumpkit.Int64:
			n, err := parseInt(f)
			if err != nil {
				return errors.Errorf("column %s: bad integer %q", col.Name, clip(f))
			}
			v.Ints = append(v.Ints, n)
		case dumpkit.String:
			v.Strings = append(v.Strings, string(f))
		default:
			x, err := strconv.ParseFloat(string(f), 64)
			if err != nil {
				return errors.Errorf("column %s: bad number %q", col.Name, clip(f))
			}
			v.Floats = append(v.Floats, x)
		}
	}
	if f, _ := nextField(line, i); len(f) != 0 {
		return errors.Errorf("more than %d values", len(s.Columns))
	}
	return nil
}

// parseInt accepts integers, and floats with no fractional part, which some
// solver builds write for integer columns.
func parseInt(f []byte) (int64, error) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	if err == nil {
		return n, nil
	}
	x, ferr := strconv.ParseFloat(string(f), 64)
	if ferr != nil || x != math.Trunc(x) || math.Abs(x) > 1<<53 {
		return 0, err
	}
	return int64(x), nil
}

// hasKeyword reports whether line is kw, optionally followed by whitespace
// and more text.
func hasKeyword(line []byte, kw string) bool {
	if !bytes.HasPrefix(line, []byte(kw)) {
		return false
	}
	return len(line) == len(kw) || isSpace(line[len(kw)])
}

func clip(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
