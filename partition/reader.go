package partition

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ampt/dumpkit"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

const readBatch = 4096

// ReadMeta returns the metadata of the partition at path. Only the parquet
// footer is read.
func ReadMeta(path string) (*Meta, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metaOfFile(path, pf)
}

// ReadInfo returns the catalog entry for the partition at path.
func ReadInfo(path string) (dumpkit.PartitionInfo, error) {
	m, err := ReadMeta(path)
	if err != nil {
		return dumpkit.PartitionInfo{}, err
	}
	return m.Info(filepath.Base(path)), nil
}

// Read loads the partition at path. When columns are given only those
// columns are decoded, in the order given; an unknown column is an error.
func Read(path string, columns ...string) (*dumpkit.Block, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	meta, err := metaOfFile(path, pf)
	if err != nil {
		return nil, err
	}
	if pf.NumRows() != meta.Rows {
		return nil, errors.Errorf("%s: metadata says %d rows, file has %d", path, meta.Rows, pf.NumRows())
	}

	blk := &dumpkit.Block{
		Kind:     meta.Kind,
		Timestep: meta.Timestep,
		Schema:   meta.Schema(),
		Box:      meta.Box,
		Rows:     int(meta.Rows),
	}
	if len(columns) > 0 {
		if blk, err = blk.Project(columns...); err != nil {
			return nil, err
		}
	}

	blk.Data = make([]dumpkit.Vector, len(blk.Schema.Columns))
	schema := pf.Schema()
	for i, c := range blk.Schema.Columns {
		leaf, ok := schema.Lookup(c.Name)
		if !ok {
			return nil, errors.Errorf("%s: column '%s' missing from parquet schema", path, c.Name)
		}
		vec := dumpkit.NewVector(c.Type, blk.Rows)
		for _, rg := range pf.RowGroups() {
			chunk := rg.ColumnChunks()[leaf.ColumnIndex]
			if err := readChunk(chunk, c.Type, &vec); err != nil {
				return nil, errors.Wrapf(err, "%s: reading column '%s'", path, c.Name)
			}
		}
		if vec.Len() != blk.Rows {
			return nil, errors.Errorf("%s: column '%s' has %d values, want %d", path, c.Name, vec.Len(), blk.Rows)
		}
		blk.Data[i] = vec
	}
	return blk, nil
}

func readChunk(chunk parquet.ColumnChunk, t dumpkit.ColumnType, vec *dumpkit.Vector) error {
	pages := chunk.Pages()
	defer pages.Close()
	buf := make([]parquet.Value, readBatch)
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "reading page")
		}
		values := page.Values()
		for {
			n, err := values.ReadValues(buf)
			for _, v := range buf[:n] {
				switch t {
				case dumpkit.Int64:
					vec.Ints = append(vec.Ints, v.Int64())
				case dumpkit.String:
					vec.Strings = append(vec.Strings, string(v.ByteArray()))
				default:
					vec.Floats = append(vec.Floats, v.Double())
				}
			}
			if err == io.EOF {
				break
			} else if err != nil {
				return errors.Wrap(err, "reading values")
			}
		}
	}
}

func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening partition")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "statting partition")
	}
	pf, err := parquet.OpenFile(f, st.Size(),
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
	)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "opening parquet file %s", path)
	}
	return f, pf, nil
}

func metaOfFile(path string, pf *parquet.File) (*Meta, error) {
	v, ok := pf.Lookup(MetaKey)
	if !ok {
		return nil, errors.Errorf("%s: no %s metadata", path, MetaKey)
	}
	m, err := unmarshalMeta(v)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}
