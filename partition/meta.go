package partition

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/ampt/dumpkit"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// MetaKey is the parquet key/value metadata entry holding a partition's Meta.
const MetaKey = "dumpkit.meta"

const metaVersion = 1

// Meta is stored in the footer of every partition. It carries everything a
// reader needs besides the row values, in the dump's column order.
type Meta struct {
	Version  int              `json:"version"`
	Kind     dumpkit.Kind     `json:"kind"`
	Timestep int64            `json:"timestep"`
	Epoch    int              `json:"epoch"`
	Line     string           `json:"line"`
	Columns  []dumpkit.Column `json:"columns"`
	Box      dumpkit.Box      `json:"box"`
	Rows     int64            `json:"rows"`
	Hash     uint64           `json:"hash"`
}

// Info returns the catalog entry describing the partition.
func (m *Meta) Info(file string) dumpkit.PartitionInfo {
	return dumpkit.PartitionInfo{
		Kind:     m.Kind,
		Timestep: m.Timestep,
		File:     file,
		Epoch:    m.Epoch,
		Rows:     m.Rows,
		Hash:     m.Hash,
	}
}

// Schema returns the dump schema recorded in the metadata.
func (m *Meta) Schema() *dumpkit.Schema {
	return &dumpkit.Schema{Epoch: m.Epoch, Line: m.Line, Columns: m.Columns}
}

func metaOf(b *dumpkit.Block) *Meta {
	return &Meta{
		Version:  metaVersion,
		Kind:     b.Kind,
		Timestep: b.Timestep,
		Epoch:    b.Schema.Epoch,
		Line:     b.Schema.Line,
		Columns:  b.Schema.Columns,
		Box:      b.Box,
		Rows:     int64(b.Rows),
		Hash:     Hash(b),
	}
}

func (m *Meta) marshal() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "marshaling partition metadata")
	}
	return string(data), nil
}

func unmarshalMeta(s string) (*Meta, error) {
	m := &Meta{}
	if err := json.Unmarshal([]byte(s), m); err != nil {
		return nil, errors.Wrap(err, "decoding partition metadata")
	}
	if m.Version != metaVersion {
		return nil, errors.Errorf("unsupported partition metadata version %d", m.Version)
	}
	return m, nil
}

// Hash returns the content hash of a block: its identity, schema, box and
// every value. Two blocks with the same hash produce the same partition.
func Hash(b *dumpkit.Block) uint64 {
	h := xxhash.New()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	putString := func(s string) {
		putInt(int64(len(s)))
		_, _ = h.WriteString(s)
	}

	putString(string(b.Kind))
	putInt(b.Timestep)
	putInt(int64(b.Epoch()))
	putInt(int64(b.Rows))
	for _, c := range b.Schema.Columns {
		putString(c.Name)
		putInt(int64(c.Type))
	}
	for i := 0; i < 3; i++ {
		putFloat(b.Box.Lo[i])
		putFloat(b.Box.Hi[i])
	}
	putInt(int64(len(b.Box.Flags)))
	for _, f := range b.Box.Flags {
		putString(f)
	}
	for _, v := range b.Data {
		for _, n := range v.Ints {
			putInt(n)
		}
		for _, x := range v.Floats {
			putFloat(x)
		}
		for _, s := range v.Strings {
			putString(s)
		}
	}
	return h.Sum64()
}
