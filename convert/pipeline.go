package convert

import (
	"context"
	"io"
	"path/filepath"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/boltdb"
	"github.com/ampt/dumpkit/catalog"
	"github.com/ampt/dumpkit/dump"
	"github.com/ampt/dumpkit/leveldb"
	"github.com/ampt/dumpkit/partition"
	"github.com/ampt/dumpkit/schema"
	"github.com/pkg/errors"
)

// dirResult is what one directory contributes to the Summary.
type dirResult struct {
	files  []*FileResult
	epochs []KindEpochs
}

// failDir records a problem which stopped a whole directory or kind.
func (m *Main) failDir(r *dirResult, dir string, k dumpkit.Kind, err error) {
	dumpkit.LogError(m.Log, "%s: %v", dir, err)
	r.files = append(r.files, &FileResult{Dir: dir, Kind: k, Errors: []error{err}})
	m.Statter.Count(dumpkit.StatFilesFailed, 1, 1)
}

func (m *Main) convertDir(ctx context.Context, dir, outDir string) *dirResult {
	r := &dirResult{}
	src, err := m.NewSource(dir)
	if err != nil {
		m.failDir(r, dir, "", errors.Wrap(err, "getting source"))
		return r
	}
	w, err := partition.NewWriter(outDir, partition.OptCompression(m.Compression), partition.OptRowGroupSize(m.RowGroup))
	if err != nil {
		m.failDir(r, dir, "", err)
		return r
	}
	removed, err := catalog.Cleanup(outDir)
	if err != nil {
		m.failDir(r, dir, "", err)
		return r
	}
	for _, name := range removed {
		m.Log.Debugf("removed stale temp file %s", filepath.Join(outDir, name))
	}
	man, rebuild, err := OpenManifest(outDir, m.Manifest, m.Log)
	if err != nil {
		m.failDir(r, dir, "", err)
		return r
	}
	defer func() {
		if err := man.Close(); err != nil {
			dumpkit.LogError(m.Log, "closing manifest of %s: %v", outDir, err)
		}
	}()

	for _, k := range m.kinds {
		if ctx.Err() != nil {
			return r
		}
		m.convertKind(ctx, r, src, dir, w, man, rebuild, k)
	}
	return r
}

// OpenManifest opens the manifest store named by store (ManifestBolt,
// ManifestLevelDB or ManifestNone) for the output directory dir. rebuild
// reports that the store was corrupt and was recreated or recovered, so the
// catalogs using it must be rebuilt from disk.
func OpenManifest(dir, store string, log dumpkit.Logger) (man dumpkit.Manifest, rebuild bool, err error) {
	switch store {
	case ManifestBolt:
		path := filepath.Join(dir, boltdb.FileName)
		bm, recreated, err := boltdb.OpenOrRecreate(path)
		if err != nil {
			return nil, false, errors.Wrap(err, "opening manifest")
		}
		if recreated {
			dumpkit.LogWarning(log, "corrupt manifest %s was recreated", path)
		}
		return bm, recreated, nil
	case ManifestLevelDB:
		path := filepath.Join(dir, leveldb.DirName)
		lm, err := leveldb.Open(path)
		if err != nil {
			return nil, false, errors.Wrap(err, "opening manifest")
		}
		if lm.Recovered() {
			dumpkit.LogWarning(log, "corrupt manifest %s was recovered", path)
		}
		return lm, lm.Recovered(), nil
	case ManifestNone:
		return dumpkit.NewMemManifest(), false, nil
	}
	return nil, false, errors.Errorf("unknown manifest store '%s'", store)
}

// kindRun is the state of converting one kind of one directory.
type kindRun struct {
	dir  string
	kind dumpkit.Kind
	w    *partition.Writer
	cat  *catalog.Catalog
	res  *schema.Resolver

	// done holds the timesteps cataloged before the run started.
	done map[int64]bool
}

func (m *Main) convertKind(ctx context.Context, r *dirResult, src dumpkit.Source, dir string, w *partition.Writer, man dumpkit.Manifest, rebuild bool, k dumpkit.Kind) {
	cat, err := catalog.Open(w.Dir(), k, man, catalog.OptLogger(m.Log))
	if err != nil {
		m.failDir(r, dir, k, err)
		return
	}
	if rebuild {
		if err := cat.Rebuild(); err != nil {
			m.failDir(r, dir, k, errors.Wrap(err, "rebuilding catalog"))
			return
		}
	}
	names, err := src.List(ctx, k)
	if err != nil {
		m.failDir(r, dir, k, errors.Wrapf(err, "listing %s files", k))
		return
	}
	if len(names) == 0 {
		return
	}

	kr := &kindRun{
		dir:  dir,
		kind: k,
		w:    w,
		cat:  cat,
		res:  schema.NewResolver(k),
		done: make(map[int64]bool),
	}
	if !m.Force {
		for _, step := range cat.Timesteps() {
			kr.done[step] = true
		}
	}
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		fr := m.convertFile(ctx, kr, src, name)
		r.files = append(r.files, fr)
		if fr.Failed() {
			m.Statter.Count(dumpkit.StatFilesFailed, 1, 1)
		}
	}
	epochs := len(kr.res.Epochs())
	m.Statter.Count(dumpkit.StatSchemaEpochs, int64(epochs), 1)
	r.epochs = append(r.epochs, KindEpochs{Dir: dir, Kind: k, Epochs: epochs})
	m.Log.Debugf("%s: %s: %d timesteps cataloged, %d schema epochs", dir, k, cat.Len(), epochs)
}

// convertFile converts one raw file. Blocks are written as soon as they are
// parsed, so only one block is held at a time.
func (m *Main) convertFile(ctx context.Context, kr *kindRun, src dumpkit.Source, name string) *FileResult {
	fr := &FileResult{Dir: kr.dir, Kind: kr.kind, File: name}
	rc, err := src.Open(ctx, name)
	if err != nil {
		fr.Errors = append(fr.Errors, err)
		dumpkit.LogError(m.Log, "%v", err)
		return fr
	}
	defer rc.Close()

	// After a write error the rest of the file is still parsed, without
	// decoding rows, so that later files see the same schema epochs.
	writing := true
	skip := func(step int64) bool {
		return !writing || kr.done[step]
	}
	p := dump.NewParser(rc, kr.kind, kr.res, dump.OptName(name), dump.OptSkip(skip))
	for {
		if ctx.Err() != nil {
			fr.Errors = append(fr.Errors, ctx.Err())
			return fr
		}
		blk, err := p.Next()
		if err == io.EOF {
			return fr
		}
		switch e := err.(type) {
		case nil:
		case *dumpkit.SchemaChangeWarning:
			fr.SchemaChanges++
			fr.Warnings = append(fr.Warnings, e)
			dumpkit.LogWarning(m.Log, "%v", e)
		case *dumpkit.TruncationError:
			fr.Truncated++
			fr.Warnings = append(fr.Warnings, e)
			m.Statter.Count(dumpkit.StatBlocksTruncated, 1, 1)
			dumpkit.LogWarning(m.Log, "%v", e)
			continue
		case *dumpkit.FormatError:
			fr.Errors = append(fr.Errors, e)
			m.Statter.Count(dumpkit.StatFormatErrors, 1, 1)
			dumpkit.LogError(m.Log, "%v", e)
			continue
		default:
			fr.Errors = append(fr.Errors, err)
			dumpkit.LogError(m.Log, "%v", err)
			return fr
		}

		if blk.Skipped {
			if writing {
				fr.Skipped++
				m.Statter.Count(dumpkit.StatBlocksSkipped, 1, 1)
			}
			continue
		}
		if err := m.write(kr, blk, fr); err != nil {
			writing = false
			fr.Errors = append(fr.Errors, err)
			m.Statter.Count(dumpkit.StatWriteErrors, 1, 1)
			dumpkit.LogError(m.Log, "%s: %v", name, err)
		}
	}
}

func (m *Main) write(kr *kindRun, blk *dumpkit.Block, fr *FileResult) error {
	info, outcome, err := kr.w.Write(blk)
	if err != nil {
		return err
	}
	if err := kr.cat.Add(info); err != nil {
		return &dumpkit.WriteError{Path: filepath.Join(kr.w.Dir(), info.File), Err: err}
	}
	if outcome == partition.Unchanged {
		fr.Unchanged++
		m.Statter.Count(dumpkit.StatBlocksUnchanged, 1, 1)
	} else {
		fr.Written++
		m.Statter.Count(dumpkit.StatBlocksWritten, 1, 1)
	}
	m.Log.Debugf("%s timestep %d: %d rows %s", kr.kind, blk.Timestep, blk.Rows, outcome)
	return nil
}
