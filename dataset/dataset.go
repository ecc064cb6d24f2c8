// Package dataset is the read side of a converted output directory: it lists
// the timesteps of each kind and loads them one at a time.
//
// A Dataset only looks at partition file names and partition contents. It
// never opens the manifest, so it can be used while a converter is writing
// to the same directory; partitions appear atomically.
package dataset

import (
	"os"
	"path/filepath"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/catalog"
	"github.com/ampt/dumpkit/partition"
	"github.com/pkg/errors"
)

// Dataset reads partitions from one output directory.
type Dataset struct {
	dir string
}

// Open returns a Dataset for the output directory dir.
func Open(dir string) *Dataset {
	return &Dataset{dir: dir}
}

// Dir returns the output directory.
func (d *Dataset) Dir() string { return d.dir }

// Timesteps returns the timesteps of kind k in ascending order.
func (d *Dataset) Timesteps(k dumpkit.Kind) ([]int64, error) {
	infos, err := catalog.Scan(d.dir, k)
	if err != nil {
		return nil, err
	}
	steps := make([]int64, len(infos))
	for i, info := range infos {
		steps[i] = info.Timestep
	}
	return steps, nil
}

// Read loads one timestep of kind k. It returns dumpkit.ErrNotFound when the
// directory has no partition for it. When columns are given only those are
// loaded.
func (d *Dataset) Read(k dumpkit.Kind, step int64, columns ...string) (*dumpkit.Block, error) {
	if step < 0 {
		return nil, dumpkit.ErrNotFound
	}
	path := filepath.Join(d.dir, partition.FileName(k, step))
	blk, err := partition.Read(path, columns...)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, dumpkit.ErrNotFound
		}
		return nil, errors.Wrapf(err, "reading %s timestep %d", k, step)
	}
	return blk, nil
}

// Each calls fn with every timestep of kind k in ascending order, loading one
// block at a time. It stops at the first error fn returns.
func (d *Dataset) Each(k dumpkit.Kind, fn func(b *dumpkit.Block) error, columns ...string) error {
	infos, err := catalog.Scan(d.dir, k)
	if err != nil {
		return err
	}
	for _, info := range infos {
		blk, err := partition.Read(filepath.Join(d.dir, info.File), columns...)
		if os.IsNotExist(errors.Cause(err)) {
			// Removed since the scan.
			continue
		} else if err != nil {
			return errors.Wrapf(err, "reading %s timestep %d", k, info.Timestep)
		}
		if err := fn(blk); err != nil {
			return err
		}
	}
	return nil
}

// ListTimesteps returns the timesteps of kind k in dir in ascending order.
func ListTimesteps(dir string, k dumpkit.Kind) ([]int64, error) {
	return Open(dir).Timesteps(k)
}

// Read loads timestep step of kind k from dir.
func Read(dir string, k dumpkit.Kind, step int64) (*dumpkit.Block, error) {
	return Open(dir).Read(k, step)
}
