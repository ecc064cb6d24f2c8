package catalog_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/catalog"
	"github.com/ampt/dumpkit/dump"
	"github.com/ampt/dumpkit/mock"
	"github.com/ampt/dumpkit/partition"
	"github.com/ampt/dumpkit/schema"
	"github.com/ampt/dumpkit/test"
	"github.com/pkg/errors"
)

// writeSteps writes one particle partition per step, in the order given.
func writeSteps(t *testing.T, dir string, steps ...int64) []dumpkit.PartitionInfo {
	t.Helper()
	specs := make([]test.BlockSpec, len(steps))
	for i, step := range steps {
		specs[i] = test.Seq(step, 3, "id", "x", "y")
	}
	w, err := partition.NewWriter(dir)
	test.ErrNil(t, err, "NewWriter")
	var infos []dumpkit.PartitionInfo
	for _, spec := range specs {
		// Each block gets its own parser since the steps may be out of order.
		p := dump.NewParser(strings.NewReader(test.Dump(dumpkit.Particle, spec)), dumpkit.Particle, schema.NewResolver(dumpkit.Particle))
		blk, err := p.Next()
		test.ErrNil(t, err, "Next")
		if _, err := p.Next(); err != io.EOF {
			t.Fatalf("expected EOF, got %v", err)
		}
		info, _, err := w.Write(blk)
		test.ErrNil(t, err, "Write")
		infos = append(infos, info)
	}
	return infos
}

func TestOrdering(t *testing.T) {
	dir := t.TempDir()
	writeSteps(t, dir, 200, 0, 100)

	c, err := catalog.Open(dir, dumpkit.Particle, dumpkit.NewMemManifest())
	test.ErrNil(t, err, "Open")
	test.MustBe(t, []int64{0, 100, 200}, c.Timesteps())
	test.MustBe(t, 3, c.Len())

	infos, err := catalog.Scan(dir, dumpkit.Particle)
	test.ErrNil(t, err, "Scan")
	var steps []int64
	for _, info := range infos {
		steps = append(steps, info.Timestep)
	}
	test.MustBe(t, []int64{0, 100, 200}, steps)
}

func TestScanIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeSteps(t, dir, 5)
	test.WriteFile(t, dir, "particle_box_00000005.parquet", "")
	test.WriteFile(t, dir, ".particle_00000006.parquet.123.tmp", "partial")
	test.WriteFile(t, dir, "grid_00000005.parquet", "")
	test.WriteFile(t, dir, "part.1.dat", "")

	infos, err := catalog.Scan(dir, dumpkit.Particle)
	test.ErrNil(t, err, "Scan")
	if len(infos) != 1 || infos[0].Timestep != 5 || infos[0].Epoch != -1 {
		t.Fatalf("unexpected scan result %+v", infos)
	}

	grid, err := catalog.Scan(dir, dumpkit.Grid)
	test.ErrNil(t, err, "Scan grid")
	test.MustBe(t, 1, len(grid))
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	writeSteps(t, dir, 1)
	test.WriteFile(t, dir, ".particle_00000002.parquet.99.tmp", "partial")

	removed, err := catalog.Cleanup(dir)
	test.ErrNil(t, err, "Cleanup")
	test.MustBe(t, []string{".particle_00000002.parquet.99.tmp"}, removed)
	if _, err := os.Stat(filepath.Join(dir, partition.FileName(dumpkit.Particle, 1))); err != nil {
		t.Fatalf("partition removed by cleanup: %v", err)
	}

	removed, err = catalog.Cleanup(filepath.Join(dir, "missing"))
	test.ErrNil(t, err, "Cleanup of missing dir")
	test.MustBe(t, 0, len(removed))
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	infos := writeSteps(t, dir, 10, 20)
	m := dumpkit.NewMemManifest()
	// The manifest knows about 10 with full information, and about 30 which
	// was deleted since.
	err := m.Put(dumpkit.Particle, infos[0], dumpkit.PartitionInfo{Kind: dumpkit.Particle, Timestep: 30, File: partition.FileName(dumpkit.Particle, 30)})
	test.ErrNil(t, err, "Put")

	c, err := catalog.Open(dir, dumpkit.Particle, m)
	test.ErrNil(t, err, "Open")
	test.MustBe(t, []int64{10, 20}, c.Timesteps())

	got, ok := c.Lookup(10)
	if !ok {
		t.Fatalf("10 missing")
	}
	test.MustBe(t, infos[0], got)
	got, ok = c.Lookup(20)
	if !ok || got.Epoch != -1 {
		t.Fatalf("expected name-only entry for 20, got %+v", got)
	}

	stored, err := m.Load(dumpkit.Particle)
	test.ErrNil(t, err, "Load")
	test.MustBe(t, 2, len(stored))
}

func TestAddAndRefresh(t *testing.T) {
	dir := t.TempDir()
	m := dumpkit.NewMemManifest()
	c, err := catalog.Open(dir, dumpkit.Particle, m)
	test.ErrNil(t, err, "Open")
	test.MustBe(t, 0, c.Len())

	infos := writeSteps(t, dir, 7, 3)
	test.ErrNil(t, c.Add(infos[0]), "Add")
	test.MustBe(t, []int64{7}, c.Timesteps())

	added, removed, err := c.Refresh()
	test.ErrNil(t, err, "Refresh")
	test.MustBe(t, 1, added)
	test.MustBe(t, 0, removed)
	test.MustBe(t, []int64{3, 7}, c.Timesteps())

	// Refresh keeps the full entry for 7 rather than re-deriving it.
	got, _ := c.Lookup(7)
	test.MustBe(t, infos[0], got)

	test.ErrNil(t, os.Remove(filepath.Join(dir, infos[0].File)), "Remove")
	added, removed, err = c.Refresh()
	test.ErrNil(t, err, "Refresh")
	test.MustBe(t, 0, added)
	test.MustBe(t, 1, removed)
	test.MustBe(t, []int64{3}, c.Timesteps())

	if err := c.Add(dumpkit.PartitionInfo{Kind: dumpkit.Grid, Timestep: 1}); err == nil {
		t.Fatalf("expected error adding grid partition to particle catalog")
	}
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	infos := writeSteps(t, dir, 1, 2)
	c, err := catalog.Open(dir, dumpkit.Particle, dumpkit.NewMemManifest())
	test.ErrNil(t, err, "Open")
	test.ErrNil(t, c.Rebuild(), "Rebuild")
	for _, info := range infos {
		got, ok := c.Lookup(info.Timestep)
		if !ok {
			t.Fatalf("%d missing after rebuild", info.Timestep)
		}
		test.MustBe(t, info, got)
	}
}

type corruptManifest struct {
	*dumpkit.MemManifest
	loads int
}

func (m *corruptManifest) Load(k dumpkit.Kind) ([]dumpkit.PartitionInfo, error) {
	m.loads++
	return nil, errors.Wrap(&dumpkit.CatalogCorruption{Path: "test", Err: errors.New("bad page")}, "loading")
}

func TestCorruptManifestRebuilds(t *testing.T) {
	dir := t.TempDir()
	infos := writeSteps(t, dir, 100, 50)
	m := &corruptManifest{MemManifest: dumpkit.NewMemManifest()}
	logger := &mock.RecordingLogger{}

	c, err := catalog.Open(dir, dumpkit.Particle, m, catalog.OptLogger(logger))
	test.ErrNil(t, err, "Open")
	test.MustBe(t, []int64{50, 100}, c.Timesteps())
	got, _ := c.Lookup(100)
	test.MustBe(t, infos[0], got)

	if warnings := logger.WithPrefix("warning: "); len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", logger.Lines())
	}
	stored, err := m.MemManifest.Load(dumpkit.Particle)
	test.ErrNil(t, err, "Load")
	test.MustBe(t, 2, len(stored))
}
