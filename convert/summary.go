package convert

import (
	"fmt"
	"io"
	"strings"

	"github.com/ampt/dumpkit"
)

// FileResult is the outcome of converting one raw file. A result with an
// empty File describes a problem with a whole directory or kind.
type FileResult struct {
	Dir  string
	Kind dumpkit.Kind
	File string

	Written       int // partitions created or replaced
	Unchanged     int // partitions which already held the same block
	Skipped       int // timesteps already cataloged before the run
	Truncated     int
	SchemaChanges int

	Warnings []error
	Errors   []error
}

// Failed reports whether the file had a format error, a write error or
// could not be read. Truncation and schema changes are not failures.
func (r *FileResult) Failed() bool {
	return len(r.Errors) > 0
}

// KindEpochs is the number of schema epochs seen for one kind of one
// directory.
type KindEpochs struct {
	Dir    string
	Kind   dumpkit.Kind
	Epochs int
}

// Summary aggregates the results of a run, in input order.
type Summary struct {
	Files  []*FileResult
	Epochs []KindEpochs
}

// Failed reports whether any file failed.
func (s *Summary) Failed() bool {
	for _, f := range s.Files {
		if f.Failed() {
			return true
		}
	}
	return false
}

// Counts returns the number of frames converted per kind: timesteps written
// or found unchanged during the run.
func (s *Summary) Counts() map[dumpkit.Kind]int {
	counts := make(map[dumpkit.Kind]int)
	for _, f := range s.Files {
		if f.File == "" {
			continue
		}
		counts[f.Kind] += f.Written + f.Unchanged
	}
	return counts
}

// Warnings returns the number of warnings across all files.
func (s *Summary) Warnings() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Warnings)
	}
	return n
}

// Errors returns every error in input order.
func (s *Summary) Errors() []error {
	var errs []error
	for _, f := range s.Files {
		errs = append(errs, f.Errors...)
	}
	return errs
}

// Report writes a per-kind line of frame counts and one line per failed
// file.
func (s *Summary) Report(w io.Writer) {
	counts := s.Counts()
	parts := make([]string, 0, len(dumpkit.Kinds))
	for _, k := range dumpkit.Kinds {
		if n, ok := counts[k]; ok {
			parts = append(parts, fmt.Sprintf("%s frames: %d", k, n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no frames")
	}
	fmt.Fprintf(w, "Completed: %s\n", strings.Join(parts, ", "))
	for _, f := range s.Files {
		if !f.Failed() {
			continue
		}
		name := f.File
		if name == "" {
			name = f.Dir
		}
		fmt.Fprintf(w, "failed: %s (%d errors)\n", name, len(f.Errors))
	}
}
