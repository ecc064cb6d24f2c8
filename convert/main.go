// Package convert turns directories of raw dump files into directories of
// timestep partitions.
//
// A run visits each input directory in its own goroutine. Within a
// directory, kinds are converted one after another, and the raw files of a
// kind are parsed sequentially in natural name order, since schema epochs
// and timestep order are only meaningful in that order. Conversion is
// resumable: timesteps already in the catalog when a run starts are read
// past without being decoded, and partitions are written atomically.
package convert

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/aws/s3"
	"github.com/ampt/dumpkit/file"
	"github.com/ampt/dumpkit/partition"
	"github.com/ampt/dumpkit/termstat"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Manifest store names accepted by Main.Manifest.
const (
	ManifestBolt    = "bolt"
	ManifestLevelDB = "leveldb"
	ManifestNone    = "none"
)

// Main holds all config for a conversion run.
type Main struct {
	Dirs        []string `help:"Simulation directories (or S3 key prefixes) holding raw dump files."`
	OutputDir   string   `help:"Directory to write partitions to. Empty means each input directory. With several inputs, each gets a subdirectory named after it."`
	Kinds       []string `help:"Dump kinds to convert: particle, grid, surf, flow. Empty means all."`
	Patterns    []string `help:"Raw file glob overrides as kind=glob, e.g. particle=dump.*.txt."`
	Compression string   `help:"Partition compression: none, snappy, gzip or zstd."`
	RowGroup    int      `help:"Maximum number of rows per parquet row group."`
	Manifest    string   `help:"Catalog manifest store: bolt, leveldb or none."`
	Force       bool     `help:"Convert timesteps which already have a partition. Identical partitions are still left untouched."`
	Concurrency int      `help:"Number of directories to convert at once."`
	S3Bucket    string   `help:"Read raw files from this S3 bucket, treating each directory as a key prefix."`
	S3Region    string   `help:"AWS region of the S3 bucket."`
	LogPath     string   `help:"Log file to write to. Empty means stderr."`
	Verbose     bool     `help:"Enable verbose logging."`
	Stats       bool     `help:"Print running conversion counters to stderr."`

	// NewSource returns the Source for an input directory. It defaults to a
	// local directory, or S3 when S3Bucket is set.
	NewSource func(dir string) (dumpkit.Source, error) `flag:"-"`
	Log       dumpkit.Logger                           `flag:"-"`
	Statter   dumpkit.Statter                          `flag:"-"`

	kinds    []dumpkit.Kind
	patterns map[dumpkit.Kind]string
	logFile  io.Closer
}

// NewMain returns a Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Compression: "zstd",
		RowGroup:    1 << 20,
		Manifest:    ManifestBolt,
		Concurrency: 1,
		S3Region:    "us-east-1",
	}
}

// Run converts every directory in m.Dirs. Problems with individual files,
// kinds or directories are recorded in the Summary rather than returned; the
// error is for bad configuration and cancellation.
func (m *Main) Run(ctx context.Context) (*Summary, error) {
	if err := m.setup(); err != nil {
		return nil, errors.Wrap(err, "setting up")
	}
	defer m.teardown()

	start := time.Now()
	results := make([]*dirResult, len(m.Dirs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.Concurrency)
	for i, dir := range m.Dirs {
		i, dir := i, dir
		eg.Go(func() error {
			results[i] = m.convertDir(ctx, dir, m.outDir(dir))
			return ctx.Err()
		})
	}
	err := eg.Wait()

	sum := &Summary{}
	for _, r := range results {
		if r == nil {
			continue
		}
		sum.Files = append(sum.Files, r.files...)
		sum.Epochs = append(sum.Epochs, r.epochs...)
	}
	m.Log.Printf("converted %d directories in %v", len(m.Dirs), time.Since(start))
	if err != nil {
		return sum, errors.Wrap(err, "converting")
	}
	return sum, nil
}

func (m *Main) validate() error {
	if len(m.Dirs) == 0 {
		return errors.New("no input directories given")
	}
	if m.Concurrency < 1 {
		return errors.Errorf("concurrency must be at least 1, got %d", m.Concurrency)
	}
	switch m.Manifest {
	case ManifestBolt, ManifestLevelDB, ManifestNone:
	default:
		return errors.Errorf("unknown manifest store '%s'", m.Manifest)
	}
	if _, ok := partition.Codecs[strings.ToLower(m.Compression)]; !ok {
		return errors.Errorf("unknown compression '%s'", m.Compression)
	}
	if m.S3Bucket != "" && m.OutputDir == "" {
		return errors.New("an output directory is required when reading from S3")
	}
	seen := make(map[string]string, len(m.Dirs))
	for _, dir := range m.Dirs {
		out := m.outDir(dir)
		if other, ok := seen[out]; ok {
			return errors.Errorf("inputs %s and %s would both write to %s", other, dir, out)
		}
		seen[out] = dir
	}
	return nil
}

func (m *Main) setup() (err error) {
	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validating configuration")
	}
	if m.kinds, err = dumpkit.ParseKinds(m.Kinds); err != nil {
		return err
	}
	if m.patterns, err = dumpkit.ParsePatterns(m.Patterns); err != nil {
		return err
	}

	if m.Log == nil {
		var logOut io.Writer = os.Stderr
		if m.LogPath != "" {
			f, err := os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				return errors.Wrap(err, "opening log file")
			}
			logOut = f
			m.logFile = f
		}
		if m.Verbose {
			m.Log = dumpkit.NewVerboseLogger(logOut)
		} else {
			m.Log = dumpkit.NewStdLogger(logOut)
		}
	}

	if m.Statter == nil {
		if m.Stats {
			m.Statter = termstat.NewCollector(os.Stderr)
		} else {
			m.Statter = dumpkit.NopStatter{}
		}
	}

	if m.NewSource == nil {
		m.NewSource = m.defaultSource
	}
	return nil
}

func (m *Main) teardown() {
	if c, ok := m.Statter.(*termstat.Collector); ok {
		c.Stop()
	}
	if m.logFile != nil {
		m.logFile.Close()
	}
}

func (m *Main) defaultSource(dir string) (dumpkit.Source, error) {
	if m.S3Bucket != "" {
		return s3.NewSource(
			s3.OptSrcBucket(m.S3Bucket),
			s3.OptSrcRegion(m.S3Region),
			s3.OptSrcPrefix(dir),
			s3.OptSrcPatterns(m.patterns),
		)
	}
	return file.NewSource(dir, file.OptSrcPatterns(m.patterns))
}

// outDir returns the directory partitions converted from dir are written to.
func (m *Main) outDir(dir string) string {
	if m.OutputDir == "" {
		return dir
	}
	if len(m.Dirs) == 1 {
		return m.OutputDir
	}
	name := path.Base(strings.TrimSuffix(filepath.ToSlash(dir), "/"))
	return filepath.Join(m.OutputDir, name)
}
