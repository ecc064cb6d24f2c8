// Package file provides a dumpkit.Source which reads raw dump files from a
// local simulation directory.
package file

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/ampt/dumpkit"
	"github.com/pkg/errors"
)

var _ dumpkit.Source = &Source{}

// SrcOption is a functional option for the file Source.
type SrcOption func(s *Source) error

// OptSrcPattern overrides the glob which selects the raw files of kind k.
func OptSrcPattern(k dumpkit.Kind, glob string) SrcOption {
	return func(s *Source) error {
		if _, err := path.Match(glob, ""); err != nil {
			return errors.Wrapf(err, "bad glob '%s'", glob)
		}
		s.patterns[k] = glob
		return nil
	}
}

// OptSrcPatterns applies several pattern overrides, as parsed by
// dumpkit.ParsePatterns.
func OptSrcPatterns(patterns map[dumpkit.Kind]string) SrcOption {
	return func(s *Source) error {
		for k, glob := range patterns {
			if err := OptSrcPattern(k, glob)(s); err != nil {
				return err
			}
		}
		return nil
	}
}

// Source lists the dump files in one directory. Subdirectories are not
// searched.
type Source struct {
	dir      string
	patterns map[dumpkit.Kind]string
}

// NewSource returns a Source for the directory dir.
func NewSource(dir string, opts ...SrcOption) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "statting path")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}
	s := &Source{
		dir:      dir,
		patterns: make(map[dumpkit.Kind]string),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the directory read by the Source.
func (s *Source) Dir() string { return s.dir }

// Pattern returns the glob used for kind k.
func (s *Source) Pattern(k dumpkit.Kind) string {
	if glob, ok := s.patterns[k]; ok {
		return glob
	}
	return k.DefaultPattern()
}

// List implements dumpkit.Source. It returns paths within the directory in
// natural order.
func (s *Source) List(ctx context.Context, k dumpkit.Kind) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading directory")
	}
	glob := s.Pattern(k)
	names := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := path.Match(glob, e.Name()); ok {
			names = append(names, filepath.Join(s.dir, e.Name()))
		}
	}
	dumpkit.SortNames(names)
	return names, nil
}

// Open implements dumpkit.Source.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	return f, nil
}
