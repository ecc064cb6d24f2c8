package dumpkit

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies which quantity a dump file holds.
type Kind string

const (
	Particle Kind = "particle"
	Grid     Kind = "grid"
	Surf     Kind = "surf"
	Flow     Kind = "flow"
)

// Kinds lists every Kind in the order a conversion run processes them.
var Kinds = []Kind{Particle, Grid, Surf, Flow}

// Header keywords which are the same for every kind.
const (
	TimestepHeader = "ITEM: TIMESTEP"
	BoxHeader      = "ITEM: BOX BOUNDS"
	HeaderPrefix   = "ITEM:"
)

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Particle, Grid, Surf, Flow:
		return k, nil
	}
	return "", errors.Errorf("unknown dump kind '%s'", s)
}

// ParseKinds parses a list of kind names. An empty list means all kinds.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return Kinds, nil
	}
	kinds := make([]Kind, 0, len(names))
	seen := make(map[Kind]bool)
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (k Kind) String() string { return string(k) }

// CountHeader is the header line which precedes the declared entity count.
// Flow dumps are written with the grid dump command and share its headers.
func (k Kind) CountHeader() string {
	switch k {
	case Particle:
		return "ITEM: NUMBER OF ATOMS"
	case Surf:
		return "ITEM: NUMBER OF SURFS"
	default:
		return "ITEM: NUMBER OF CELLS"
	}
}

// RowsHeader is the keyword which starts the column-name line.
func (k Kind) RowsHeader() string {
	switch k {
	case Particle:
		return "ITEM: ATOMS"
	case Surf:
		return "ITEM: SURFS"
	default:
		return "ITEM: CELLS"
	}
}

// DefaultPattern is the glob which matches raw dump files of this kind.
func (k Kind) DefaultPattern() string {
	switch k {
	case Particle:
		return "part.*.dat"
	case Surf:
		return "surf.*.dat"
	case Flow:
		return "flow.*.dat"
	default:
		return "grid.*.dat"
	}
}

// ParsePatterns parses raw file pattern overrides of the form kind=glob,
// e.g. "particle=dump.*.txt". The globs use path.Match syntax and are
// matched against base names.
func ParsePatterns(specs []string) (map[Kind]string, error) {
	patterns := make(map[Kind]string, len(specs))
	for _, spec := range specs {
		i := strings.IndexByte(spec, '=')
		if i < 0 {
			return nil, errors.Errorf("pattern '%s' is not of the form kind=glob", spec)
		}
		k, err := ParseKind(spec[:i])
		if err != nil {
			return nil, errors.Wrap(err, "parsing pattern")
		}
		glob := strings.TrimSpace(spec[i+1:])
		if glob == "" {
			return nil, errors.Errorf("empty glob for %s", k)
		}
		if _, err := path.Match(glob, ""); err != nil {
			return nil, errors.Wrapf(err, "bad glob '%s'", glob)
		}
		patterns[k] = glob
	}
	return patterns, nil
}
