// Package catalog keeps the set of timesteps which have a partition in an
// output directory.
//
// The partition files themselves are the source of truth. A catalog caches
// what it knows about them in a dumpkit.Manifest, reconciles the manifest
// against the directory whenever it is opened, and rebuilds it from disk
// when it cannot be trusted.
package catalog

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/partition"
	"github.com/pkg/errors"
)

// Scan returns an entry for every partition of kind k in dir, ordered by
// timestep. Only file names are examined, so entries have an unknown epoch.
func Scan(dir string, k dumpkit.Kind) ([]dumpkit.PartitionInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", dir)
	}
	infos := make([]dumpkit.PartitionInfo, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pk, step, ok := partition.ParseFileName(e.Name())
		if !ok || pk != k {
			continue
		}
		infos = append(infos, dumpkit.PartitionInfo{
			Kind:     k,
			Timestep: step,
			File:     e.Name(),
			Epoch:    -1,
		})
	}
	dumpkit.SortInfos(infos)
	return infos, nil
}

// Cleanup removes temporary partition files left in dir by an interrupted
// writer and returns their names. It must not run while a writer is active
// in dir.
func Cleanup(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", dir)
	}
	var removed []string
	for _, e := range entries {
		if e.IsDir() || !partition.IsTemp(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrap(err, "removing temp file")
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// Option is a functional option for Catalog.
type Option func(c *Catalog)

// OptLogger sets the logger used for warnings.
func OptLogger(l dumpkit.Logger) Option {
	return func(c *Catalog) {
		c.log = l
	}
}

// Catalog is the ordered set of timesteps of one kind in one directory. It
// is not safe for concurrent use.
type Catalog struct {
	dir      string
	kind     dumpkit.Kind
	manifest dumpkit.Manifest
	log      dumpkit.Logger

	entries map[int64]dumpkit.PartitionInfo
	steps   []int64
}

// Open loads the catalog of kind k in dir from m and reconciles it with the
// partitions actually present. A corrupt manifest is rebuilt.
func Open(dir string, k dumpkit.Kind, m dumpkit.Manifest, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		dir:      dir,
		kind:     k,
		manifest: m,
		log:      dumpkit.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	infos, err := m.Load(k)
	var corrupt *dumpkit.CatalogCorruption
	if errors.As(err, &corrupt) {
		dumpkit.LogWarning(c.log, "%v; rebuilding %s catalog of %s", err, k, dir)
		if err := c.Rebuild(); err != nil {
			return nil, err
		}
		return c, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "loading %s catalog of %s", k, dir)
	}
	c.set(infos)
	if _, _, err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) set(infos []dumpkit.PartitionInfo) {
	c.entries = make(map[int64]dumpkit.PartitionInfo, len(infos))
	for _, info := range infos {
		c.entries[info.Timestep] = info
	}
	c.sortSteps()
}

func (c *Catalog) sortSteps() {
	c.steps = c.steps[:0]
	for step := range c.entries {
		c.steps = append(c.steps, step)
	}
	sort.Slice(c.steps, func(i, j int) bool { return c.steps[i] < c.steps[j] })
}

// Dir returns the directory the catalog describes.
func (c *Catalog) Dir() string { return c.dir }

// Kind returns the kind the catalog describes.
func (c *Catalog) Kind() dumpkit.Kind { return c.kind }

// Timesteps returns the cataloged timesteps in ascending order.
func (c *Catalog) Timesteps() []int64 {
	steps := make([]int64, len(c.steps))
	copy(steps, c.steps)
	return steps
}

// Lookup returns the entry for step.
func (c *Catalog) Lookup(step int64) (dumpkit.PartitionInfo, bool) {
	info, ok := c.entries[step]
	return info, ok
}

// Len returns the number of cataloged timesteps.
func (c *Catalog) Len() int { return len(c.entries) }

// Add records a partition which was just written.
func (c *Catalog) Add(info dumpkit.PartitionInfo) error {
	if info.Kind != c.kind {
		return errors.Errorf("adding %s partition to %s catalog", info.Kind, c.kind)
	}
	if err := c.manifest.Put(c.kind, info); err != nil {
		return errors.Wrap(err, "updating manifest")
	}
	if _, ok := c.entries[info.Timestep]; !ok {
		c.entries[info.Timestep] = info
		c.sortSteps()
		return nil
	}
	c.entries[info.Timestep] = info
	return nil
}

// Refresh brings the catalog up to date with the directory. Partitions which
// appeared are added from their names, entries whose partition vanished are
// dropped, and every other entry is kept as it is. It returns the number of
// entries added and removed.
func (c *Catalog) Refresh() (added, removed int, err error) {
	infos, err := Scan(c.dir, c.kind)
	if os.IsNotExist(errors.Cause(err)) {
		infos = nil
	} else if err != nil {
		return 0, 0, err
	}
	present := make(map[int64]bool, len(infos))
	var fresh []dumpkit.PartitionInfo
	for _, info := range infos {
		present[info.Timestep] = true
		if old, ok := c.entries[info.Timestep]; ok && old.File == info.File {
			continue
		}
		fresh = append(fresh, info)
	}
	var gone []int64
	for step := range c.entries {
		if !present[step] {
			gone = append(gone, step)
		}
	}
	if len(fresh) == 0 && len(gone) == 0 {
		return 0, 0, nil
	}

	if len(gone) > 0 {
		if err := c.manifest.Delete(c.kind, gone...); err != nil {
			return 0, 0, errors.Wrap(err, "updating manifest")
		}
		for _, step := range gone {
			delete(c.entries, step)
		}
	}
	if len(fresh) > 0 {
		if err := c.manifest.Put(c.kind, fresh...); err != nil {
			return 0, 0, errors.Wrap(err, "updating manifest")
		}
		for _, info := range fresh {
			c.entries[info.Timestep] = info
		}
	}
	c.sortSteps()
	return len(fresh), len(gone), nil
}

// Rebuild discards the manifest's entries for the catalog's kind and
// recreates them from the partitions in the directory, reading each
// partition's footer. Partitions whose footer cannot be read are kept with
// the information their name carries.
func (c *Catalog) Rebuild() error {
	infos, err := Scan(c.dir, c.kind)
	if os.IsNotExist(errors.Cause(err)) {
		infos = nil
	} else if err != nil {
		return err
	}
	for i, info := range infos {
		full, err := partition.ReadInfo(filepath.Join(c.dir, info.File))
		if err != nil {
			dumpkit.LogWarning(c.log, "reading %s: %v", info.File, err)
			continue
		}
		infos[i] = full
	}
	if err := c.manifest.Reset(c.kind); err != nil {
		return errors.Wrap(err, "resetting manifest")
	}
	if len(infos) > 0 {
		if err := c.manifest.Put(c.kind, infos...); err != nil {
			return errors.Wrap(err, "updating manifest")
		}
	}
	c.set(infos)
	return nil
}
