// Package boltdb provides a dumpkit.Manifest stored in a single boltdb file.
// Bolt holds an exclusive lock on the file while it is open, which keeps a
// second converter out of the same output directory.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"time"

	"github.com/ampt/dumpkit"
	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

// FileName is the default name of the manifest in an output directory.
const FileName = ".dumpkit.manifest"

var _ dumpkit.Manifest = &Manifest{}

// Manifest keeps one bucket per dump kind, keyed by big-endian timestep,
// holding JSON encoded dumpkit.PartitionInfo values.
type Manifest struct {
	Db   *bolt.DB
	path string
}

// Open opens or creates the manifest at path. A file which is not a valid
// bolt database is reported as *dumpkit.CatalogCorruption.
func Open(path string) (*Manifest, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	switch err {
	case nil:
	case bolt.ErrInvalid, bolt.ErrVersionMismatch, bolt.ErrChecksum:
		return nil, &dumpkit.CatalogCorruption{Path: path, Err: err}
	case bolt.ErrTimeout:
		return nil, errors.Errorf("manifest '%v' is locked by another process", path)
	default:
		return nil, errors.Wrapf(err, "opening db file '%v'", path)
	}
	return &Manifest{Db: db, path: path}, nil
}

// OpenOrRecreate opens the manifest at path, replacing it with an empty one
// if it is corrupt. recreated reports whether that happened, in which case
// catalogs using the manifest should be rebuilt.
func OpenOrRecreate(path string) (m *Manifest, recreated bool, err error) {
	m, err = Open(path)
	if _, ok := err.(*dumpkit.CatalogCorruption); !ok {
		return m, false, err
	}
	if rerr := os.Remove(path); rerr != nil {
		return nil, false, errors.Wrap(rerr, "removing corrupt manifest")
	}
	m, err = Open(path)
	return m, err == nil, err
}

// Path returns the file the manifest is stored in.
func (m *Manifest) Path() string { return m.path }

// Close syncs and closes the underlying boltdb.
func (m *Manifest) Close() error {
	err := m.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return m.Db.Close()
}

func stepKey(step int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(step))
	return key
}

// Load implements dumpkit.Manifest. Entries come back in key order, which is
// timestep order.
func (m *Manifest) Load(k dumpkit.Kind) ([]dumpkit.PartitionInfo, error) {
	infos := make([]dumpkit.PartitionInfo, 0)
	err := m.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(k))
		if b == nil {
			return nil
		}
		return b.ForEach(func(key, val []byte) error {
			var info dumpkit.PartitionInfo
			if len(key) != 8 {
				return errors.Errorf("bad key %x", key)
			}
			if err := json.Unmarshal(val, &info); err != nil {
				return errors.Wrapf(err, "decoding entry %d", binary.BigEndian.Uint64(key))
			}
			if info.Timestep != int64(binary.BigEndian.Uint64(key)) || info.Kind != k {
				return errors.Errorf("entry %d does not match its key", binary.BigEndian.Uint64(key))
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, &dumpkit.CatalogCorruption{Path: m.path, Err: err}
	}
	return infos, nil
}

// Put implements dumpkit.Manifest.
func (m *Manifest) Put(k dumpkit.Kind, infos ...dumpkit.PartitionInfo) error {
	return m.Db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(k))
		if err != nil {
			return errors.Wrapf(err, "creating %s bucket", k)
		}
		for _, info := range infos {
			val, err := json.Marshal(info)
			if err != nil {
				return errors.Wrap(err, "encoding entry")
			}
			if err := b.Put(stepKey(info.Timestep), val); err != nil {
				return errors.Wrapf(err, "putting %s timestep %d", k, info.Timestep)
			}
		}
		return nil
	})
}

// Delete implements dumpkit.Manifest.
func (m *Manifest) Delete(k dumpkit.Kind, steps ...int64) error {
	return m.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(k))
		if b == nil {
			return nil
		}
		for _, step := range steps {
			if err := b.Delete(stepKey(step)); err != nil {
				return errors.Wrapf(err, "deleting %s timestep %d", k, step)
			}
		}
		return nil
	})
}

// Reset implements dumpkit.Manifest.
func (m *Manifest) Reset(k dumpkit.Kind) error {
	return m.Db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(k))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return errors.Wrapf(err, "deleting %s bucket", k)
	})
}
