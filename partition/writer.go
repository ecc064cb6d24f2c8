// Package partition stores one timestep block per Parquet file and reads
// it back.
//
// A partition is written to a hidden temporary file in the output directory
// and renamed into place once it is complete, so readers never see a
// partially written partition, even after a crash.
package partition

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ampt/dumpkit"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/pkg/errors"
)

// Outcome says what Write did.
type Outcome int

const (
	// Created means no partition existed for the timestep.
	Created Outcome = iota
	// Replaced means a partition with different content was replaced.
	Replaced
	// Unchanged means an identical partition already existed and was left
	// untouched.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Replaced:
		return "replaced"
	default:
		return "unchanged"
	}
}

// Codecs maps compression names to parquet codecs.
var Codecs = map[string]compress.Codec{
	"none":   &parquet.Uncompressed,
	"snappy": &parquet.Snappy,
	"gzip":   &parquet.Gzip,
	"zstd":   &parquet.Zstd,
}

const (
	defaultCompression = "zstd"
	defaultRowGroup    = 1 << 20
	writeBatch         = 1024
)

// WriterOption is a functional option for Writer.
type WriterOption func(w *Writer) error

// OptCompression sets the compression codec by name; see Codecs.
func OptCompression(name string) WriterOption {
	return func(w *Writer) error {
		if name == "" {
			name = defaultCompression
		}
		codec, ok := Codecs[strings.ToLower(name)]
		if !ok {
			return errors.Errorf("unknown compression '%s'", name)
		}
		w.codec = codec
		return nil
	}
}

// OptRowGroupSize sets the maximum number of rows per parquet row group.
func OptRowGroupSize(n int) WriterOption {
	return func(w *Writer) error {
		if n <= 0 {
			return errors.Errorf("row group size must be positive, got %d", n)
		}
		w.rowGroup = n
		return nil
	}
}

// Writer writes partitions into one directory.
type Writer struct {
	dir      string
	codec    compress.Codec
	rowGroup int
}

// NewWriter returns a Writer for dir, creating dir if needed.
func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dir:      dir,
		codec:    Codecs[defaultCompression],
		rowGroup: defaultRowGroup,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &dumpkit.WriteError{Path: dir, Err: err}
	}
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write persists b as the partition for (b.Kind, b.Timestep). If a partition
// with identical content exists it is left alone; otherwise it is replaced
// as a whole. Failures are returned as *dumpkit.WriteError.
func (w *Writer) Write(b *dumpkit.Block) (dumpkit.PartitionInfo, Outcome, error) {
	if b.Skipped || b.Schema == nil {
		return dumpkit.PartitionInfo{}, 0, errors.Errorf("%s timestep %d has no data to write", b.Kind, b.Timestep)
	}
	name := FileName(b.Kind, b.Timestep)
	path := filepath.Join(w.dir, name)
	meta := metaOf(b)

	outcome := Created
	if old, err := ReadMeta(path); err == nil {
		if old.Hash == meta.Hash {
			return old.Info(name), Unchanged, nil
		}
		outcome = Replaced
	} else if !os.IsNotExist(errors.Cause(err)) {
		// Unreadable partitions are replaced.
		outcome = Replaced
	}

	if err := w.writeAtomic(path, name, b, meta); err != nil {
		return dumpkit.PartitionInfo{}, 0, &dumpkit.WriteError{Path: path, Err: err}
	}
	return meta.Info(name), outcome, nil
}

func (w *Writer) writeAtomic(path, name string, b *dumpkit.Block, meta *Meta) (err error) {
	f, err := os.CreateTemp(w.dir, tempPattern(name))
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = w.encode(f, b, meta); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return errors.Wrap(err, "syncing temp file")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err = os.Chmod(tmp, 0644); err != nil {
		return errors.Wrap(err, "setting permissions")
	}
	if err = os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "renaming into place")
	}
	return syncDir(w.dir)
}

func (w *Writer) encode(f *os.File, b *dumpkit.Block, meta *Meta) error {
	mv, err := meta.marshal()
	if err != nil {
		return err
	}
	schema, leaves, err := parquetSchema(b.Kind, b.Schema)
	if err != nil {
		return err
	}
	pw := parquet.NewWriter(f,
		schema,
		parquet.Compression(w.codec),
		parquet.MaxRowsPerRowGroup(int64(w.rowGroup)),
		parquet.KeyValueMetadata(MetaKey, mv),
	)

	batch := make([]parquet.Row, 0, writeBatch)
	for r := 0; r < b.Rows; r++ {
		row := make(parquet.Row, len(leaves))
		for c, vec := range b.Data {
			leaf := leaves[c]
			var v parquet.Value
			switch b.Schema.Columns[c].Type {
			case dumpkit.Int64:
				v = parquet.Int64Value(vec.Ints[r])
			case dumpkit.String:
				v = parquet.ByteArrayValue([]byte(vec.Strings[r]))
			default:
				v = parquet.DoubleValue(vec.Floats[r])
			}
			row[leaf] = v.Level(0, 0, leaf)
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if _, err := pw.WriteRows(batch); err != nil {
				return errors.Wrap(err, "writing rows")
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := pw.WriteRows(batch); err != nil {
			return errors.Wrap(err, "writing rows")
		}
	}
	return errors.Wrap(pw.Close(), "closing parquet writer")
}

// parquetSchema returns the parquet schema for s, and for each dump column
// the index of its parquet leaf column. Parquet orders the fields of a group
// by name, so the dump's column order lives in the partition metadata.
func parquetSchema(k dumpkit.Kind, s *dumpkit.Schema) (*parquet.Schema, []int, error) {
	group := make(parquet.Group, len(s.Columns))
	for _, c := range s.Columns {
		switch c.Type {
		case dumpkit.Int64:
			group[c.Name] = parquet.Leaf(parquet.Int64Type)
		case dumpkit.String:
			group[c.Name] = parquet.String()
		default:
			group[c.Name] = parquet.Leaf(parquet.DoubleType)
		}
	}
	schema := parquet.NewSchema(string(k), group)
	leaves := make([]int, len(s.Columns))
	for i, c := range s.Columns {
		leaf, ok := schema.Lookup(c.Name)
		if !ok {
			return nil, nil, errors.Errorf("column '%s' missing from parquet schema", c.Name)
		}
		leaves[i] = leaf.ColumnIndex
	}
	return schema, leaves, nil
}

// syncDir flushes the directory entry of a rename to disk.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "opening directory for sync")
	}
	defer d.Close()
	// Some filesystems do not support syncing directories; the rename has
	// already happened either way.
	_ = d.Sync()
	return nil
}
