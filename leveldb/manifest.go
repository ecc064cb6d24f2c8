// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package leveldb provides a dumpkit.Manifest which stores catalog entries
// in leveldb. It has better write performance than the boltdb manifest for
// directories with very many timesteps.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"os"

	"github.com/ampt/dumpkit"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// DirName is the default name of the manifest database in an output
// directory.
const DirName = ".dumpkit.manifest.ldb"

var _ dumpkit.Manifest = &Manifest{}

// Manifest keys entries by kind, a slash, and the big-endian timestep, so
// that iterating one kind's prefix yields its entries in timestep order.
type Manifest struct {
	db        *leveldb.DB
	dirname   string
	recovered bool
}

// Open opens or creates the manifest database in dirname. A database whose
// files are corrupted is recovered with leveldb.RecoverFile; Recovered then
// reports true.
func Open(dirname string) (*Manifest, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	m := &Manifest{dirname: dirname}
	m.db, err = leveldb.OpenFile(dirname, &opt.Options{})
	if lerrors.IsCorrupted(err) {
		m.recovered = true
		m.db, err = leveldb.RecoverFile(dirname, &opt.Options{})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return m, nil
}

// Recovered reports whether the database had to be recovered when it was
// opened. Entries may have been lost, so catalogs should be rebuilt.
func (m *Manifest) Recovered() bool { return m.recovered }

// Close closes the underlying leveldb.
func (m *Manifest) Close() error {
	return errors.Wrap(m.db.Close(), "closing leveldb")
}

func kindPrefix(k dumpkit.Kind) []byte {
	return []byte(string(k) + "/")
}

func entryKey(k dumpkit.Kind, step int64) []byte {
	prefix := kindPrefix(k)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(step))
	return key
}

// Load implements dumpkit.Manifest.
func (m *Manifest) Load(k dumpkit.Kind) ([]dumpkit.PartitionInfo, error) {
	infos := make([]dumpkit.PartitionInfo, 0)
	iter := m.db.NewIterator(util.BytesPrefix(kindPrefix(k)), nil)
	defer iter.Release()
	for iter.Next() {
		var info dumpkit.PartitionInfo
		if err := json.Unmarshal(iter.Value(), &info); err != nil {
			return nil, &dumpkit.CatalogCorruption{Path: m.dirname, Err: errors.Wrapf(err, "decoding entry %x", iter.Key())}
		}
		if info.Kind != k {
			return nil, &dumpkit.CatalogCorruption{Path: m.dirname, Err: errors.Errorf("entry %x has kind %s", iter.Key(), info.Kind)}
		}
		infos = append(infos, info)
	}
	if err := iter.Error(); err != nil {
		if lerrors.IsCorrupted(err) {
			return nil, &dumpkit.CatalogCorruption{Path: m.dirname, Err: err}
		}
		return nil, errors.Wrap(err, "iterating entries")
	}
	return infos, nil
}

// Put implements dumpkit.Manifest.
func (m *Manifest) Put(k dumpkit.Kind, infos ...dumpkit.PartitionInfo) error {
	batch := new(leveldb.Batch)
	for _, info := range infos {
		val, err := json.Marshal(info)
		if err != nil {
			return errors.Wrap(err, "encoding entry")
		}
		batch.Put(entryKey(k, info.Timestep), val)
	}
	return errors.Wrap(m.db.Write(batch, &opt.WriteOptions{}), "writing entries")
}

// Delete implements dumpkit.Manifest.
func (m *Manifest) Delete(k dumpkit.Kind, steps ...int64) error {
	batch := new(leveldb.Batch)
	for _, step := range steps {
		batch.Delete(entryKey(k, step))
	}
	return errors.Wrap(m.db.Write(batch, &opt.WriteOptions{}), "deleting entries")
}

// Reset implements dumpkit.Manifest.
func (m *Manifest) Reset(k dumpkit.Kind) error {
	batch := new(leveldb.Batch)
	iter := m.db.NewIterator(util.BytesPrefix(kindPrefix(k)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	err := iter.Error()
	iter.Release()
	if err != nil {
		return errors.Wrap(err, "iterating entries")
	}
	return errors.Wrap(m.db.Write(batch, &opt.WriteOptions{}), "deleting entries")
}
